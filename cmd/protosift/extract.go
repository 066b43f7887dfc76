package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"protosift/internal/diag"
	"protosift/internal/driver"
	"protosift/internal/resolve"
)

// errNoCandidates maps to exit code 2: a directory scan found nothing that
// looks like a binary.
var errNoCandidates = errors.New("no candidate binaries found")

var (
	extractFile           string
	extractDir            string
	extractOutput         string
	extractForce          bool
	extractDryRun         bool
	extractListOnly       bool
	extractMaxDescriptors int
	extractStrategy       string
	extractFormat         string
	extractJobs           int
	extractUseCache       bool
	extractVerbosity      int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Scan binaries and reconstruct embedded .proto files",
	Long: `Extract scans a binary (or every candidate binary under a directory) for
embedded FileDescriptorProto records and writes the reconstructed .proto
sources into the output directory`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFile, "file", "f", "", "path to a single binary file")
	f.StringVarP(&extractDir, "directory", "d", "", "path to a directory of binaries")
	f.StringVarP(&extractOutput, "output", "o", ".", "output directory for extracted .proto files")
	f.BoolVar(&extractForce, "force", false, "overwrite existing files")
	f.BoolVar(&extractDryRun, "dry-run", false, "show what would be written without writing")
	f.BoolVar(&extractListOnly, "list-only", false, "only list found descriptors")
	f.IntVar(&extractMaxDescriptors, "max-descriptors", 0, "maximum descriptors per file (0 = unlimited)")
	f.StringVar(&extractStrategy, "conflict-strategy", "", "conflict strategy (hash-suffix|source-suffix|skip-conflicts)")
	f.StringVar(&extractFormat, "format", "proto", "output format (proto|filename)")
	f.IntVar(&extractJobs, "jobs", 0, "parallel binaries in directory mode (0 = all CPUs)")
	f.BoolVar(&extractUseCache, "cache", false, "replay results for binaries unchanged since the last run")
	f.CountVarP(&extractVerbosity, "verbose", "v", "verbosity (repeatable)")

	extractCmd.MarkFlagsMutuallyExclusive("file", "directory")
	extractCmd.MarkFlagsOneRequired("file", "directory")
}

func runExtract(cmd *cobra.Command, args []string) error {
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	mode, err := readColorMode(colorFlag)
	if err != nil {
		return err
	}
	useColor := shouldColor(mode, os.Stderr)

	if err := applyManifestDefaults(cmd); err != nil {
		return err
	}

	strategyName := extractStrategy
	if strategyName == "" {
		strategyName = string(resolve.StrategyHashSuffix)
	}
	strategy, err := resolve.ParseStrategy(strategyName)
	if err != nil {
		return err
	}
	format, err := driver.ParseFormat(extractFormat)
	if err != nil {
		return err
	}

	var cache *driver.Cache
	if extractUseCache {
		cache, err = driver.OpenCache("protosift")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "cache disabled: %v\n", err)
			cache = nil
		}
	}

	opts := driver.Options{
		OutputDir:      extractOutput,
		Force:          extractForce,
		DryRun:         extractDryRun,
		ListOnly:       extractListOnly,
		Format:         format,
		MaxDescriptors: extractMaxDescriptors,
		Jobs:           extractJobs,
		Verbosity:      extractVerbosity,
		Quiet:          quiet,
		Color:          useColor,
	}
	resolver := resolve.New(strategy)
	pipeline := driver.New(opts, resolver, cache, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bag *diag.Bag
	switch {
	case extractFile != "":
		if err := checkInputFile(extractFile); err != nil {
			return err
		}
		bag = diag.NewBag(256)
		if err := pipeline.ProcessBinary(ctx, extractFile, bag); err != nil {
			printDiagnostics(cmd.ErrOrStderr(), bag, useColor, extractVerbosity)
			return err
		}
	default:
		if err := checkInputDir(extractDir); err != nil {
			return err
		}
		var candidates int
		bag, candidates, err = pipeline.ProcessDir(ctx, extractDir)
		if err != nil {
			return err
		}
		if candidates == 0 {
			return errNoCandidates
		}
		if extractVerbosity >= 1 && !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Processed %d binaries\n", candidates)
		}
	}

	printDiagnostics(cmd.ErrOrStderr(), bag, useColor, extractVerbosity)

	if !extractListOnly && !extractDryRun && format == driver.FormatProto && !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), resolver.Stats().Summary())
	}
	return nil
}

// applyManifestDefaults fills in values from a discovered protosift.toml for
// every flag the user did not set explicitly.
func applyManifestDefaults(cmd *cobra.Command) error {
	m, ok, err := loadManifest("")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	flags := cmd.Flags()
	if !flags.Changed("output") && m.Config.Output.Dir != "" {
		extractOutput = m.Config.Output.Dir
	}
	if !flags.Changed("force") && m.Config.Output.Force {
		extractForce = true
	}
	if !flags.Changed("max-descriptors") && m.Config.Scan.MaxDescriptors > 0 {
		extractMaxDescriptors = m.Config.Scan.MaxDescriptors
	}
	if !flags.Changed("jobs") && m.Config.Scan.Jobs > 0 {
		extractJobs = m.Config.Scan.Jobs
	}
	if !flags.Changed("conflict-strategy") && m.Config.Conflict.Strategy != "" {
		extractStrategy = m.Config.Conflict.Strategy
	}
	return nil
}

func checkInputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input path is not a file: %s", path)
	}
	return nil
}

func checkInputDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

// printDiagnostics writes warnings and errors to w; infos only appear with
// -v.
func printDiagnostics(w io.Writer, bag *diag.Bag, useColor bool, verbosity int) {
	if bag == nil || bag.Len() == 0 {
		return
	}
	warnColor := color.New(color.FgYellow)
	errColor := color.New(color.FgRed)
	if !useColor {
		warnColor.DisableColor()
		errColor.DisableColor()
	}
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errColor.Fprintln(w, d.String())
		case diag.SevWarning:
			warnColor.Fprintln(w, d.String())
		default:
			if verbosity >= 1 {
				fmt.Fprintln(w, d.String())
			}
		}
	}
}
