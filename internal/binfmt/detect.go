// Package binfmt decides which files in a directory walk are worth scanning:
// a cheap extension blocklist, size bounds, and executable magic bytes.
// Detection is heuristic; a miss only costs a wasted scan, so extensionless
// files are admitted by default.
package binfmt

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MinSize and MaxSize bound candidate files: below 1 KiB nothing meaningful
// embeds a descriptor, above 500 MiB the whole-file read is not worth it.
const (
	MinSize = 1 << 10
	MaxSize = 500 << 20
)

// skipExtensions lists extensions that are never compiled binaries.
var skipExtensions = map[string]bool{
	"txt": true, "md": true, "json": true, "yaml": true, "yml": true,
	"xml": true, "html": true, "css": true, "js": true, "ts": true,
	"py": true, "rb": true, "go": true, "rs": true, "c": true, "h": true,
	"cpp": true, "hpp": true, "java": true, "proto": true, "toml": true,
	"ini": true, "cfg": true, "conf": true, "log": true, "csv": true,
	"svg": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"pdf": true, "zip": true, "tar": true, "gz": true, "bz2": true,
	"xz": true, "7z": true, "rar": true, "sh": true, "bash": true,
	"zsh": true, "fish": true, "ps1": true, "bat": true, "cmd": true,
}

// magics are executable container signatures: Mach-O in all byte orders,
// fat/universal Mach-O, ELF, and the PE "MZ" stub.
var magics = [][]byte{
	{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O 64-bit
	{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O 32-bit
	{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64-bit, reverse
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O 32-bit, reverse
	{0xCA, 0xFE, 0xBA, 0xBE}, // Mach-O universal
	{0x7F, 'E', 'L', 'F'},    // ELF
	{'M', 'Z'},               // PE
}

// HasBlockedExtension reports whether the path's extension rules it out
// before any I/O happens.
func HasBlockedExtension(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return false
	}
	return skipExtensions[strings.ToLower(ext)]
}

// MatchesMagic reports whether the leading bytes carry a known executable
// signature.
func MatchesMagic(head []byte) bool {
	for _, m := range magics {
		if bytes.HasPrefix(head, m) {
			return true
		}
	}
	return false
}

// IsCandidate reports whether path looks like a compiled binary worth
// scanning. Stat or read errors disqualify the file; callers treat that as a
// skip, not a failure.
func IsCandidate(path string) bool {
	if HasBlockedExtension(path) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if info.Size() < MinSize || info.Size() > MaxSize {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err == nil && MatchesMagic(head) {
		return true
	}

	// No recognized magic: admit only files without an extension, which is
	// how stripped server-side binaries usually ship.
	return filepath.Ext(path) == ""
}
