package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"protosift/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "protosift",
	Short: "Extract Protocol Buffer definitions from compiled binaries",
	Long:  `protosift scans binaries for embedded protobuf file descriptors and reconstructs them into .proto source files`,
}

// main initializes the CLI by setting the command version, registering
// subcommands and persistent flags, and then executes the root command.
// Exit codes: 0 success, 1 I/O or argument error, 2 no candidate binaries.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNoCandidates) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
