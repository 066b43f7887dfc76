// Package resolve decides what happens when descriptors extracted from
// different binaries claim the same filename: keep, skip, or rename. One
// Resolver spans an entire multi-binary run and is safe for concurrent use;
// it is the only shared state between per-binary pipelines.
package resolve

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Strategy selects how same-name different-content descriptors are handled.
type Strategy string

const (
	// StrategyHashSuffix renames conflicts to stem~<hex8(hash)>.proto.
	StrategyHashSuffix Strategy = "hash-suffix"
	// StrategySourceSuffix renames conflicts to stem~from-<source>.proto.
	StrategySourceSuffix Strategy = "source-suffix"
	// StrategySkipConflicts keeps the first occurrence only.
	StrategySkipConflicts Strategy = "skip-conflicts"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyHashSuffix, StrategySourceSuffix, StrategySkipConflicts:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q (expected hash-suffix|source-suffix|skip-conflicts)", s)
}

// Action is the resolver's verdict for one artifact.
type Action uint8

const (
	// ActionWrite means the artifact gets written under Decision.OutputName.
	ActionWrite Action = iota
	// ActionSkipDuplicate means identical content was already written.
	ActionSkipDuplicate
	// ActionSkipConflict means differing content was dropped under
	// StrategySkipConflicts.
	ActionSkipConflict
)

// Decision is the outcome of registering one artifact.
type Decision struct {
	Action Action
	// OutputName is the resolved relative output filename for ActionWrite.
	OutputName string
	// Renamed is set when OutputName differs from the canonical filename.
	Renamed bool
}

// Stats are the per-run counters the summary line reports.
type Stats struct {
	Found             int
	DuplicatesSkipped int
	ConflictsRenamed  int
	ConflictsSkipped  int
	Written           int
}

// Summary renders the end-of-run report line.
func (s Stats) Summary() string {
	return fmt.Sprintf("Summary: %d found, %d duplicates skipped, %d conflicts renamed, %d written",
		s.Found, s.DuplicatesSkipped, s.ConflictsRenamed, s.Written)
}

// Artifact is one rendered descriptor heading for the output tree.
type Artifact struct {
	// Filename is the canonical descriptor filename, possibly with path
	// components.
	Filename string
	// Content is the rendered .proto text.
	Content []byte
	// SourceBinary is the binary the descriptor was extracted from.
	SourceBinary string
}

// Hash returns the stable content digest the resolver deduplicates on.
func (a Artifact) Hash() uint64 {
	sum := sha256.Sum256(a.Content)
	return binary.BigEndian.Uint64(sum[:8])
}

// HexHash renders the low 32 bits of a content hash as 8 lowercase hex
// digits, the form used in hash-suffix renames.
func HexHash(h uint64) string {
	return fmt.Sprintf("%08x", uint32(h))
}

// Resolver tracks every (filename, content hash) pair seen during a run.
type Resolver struct {
	strategy Strategy

	mu sync.Mutex
	// seen maps canonical filename -> content hashes in arrival order.
	seen map[string][]uint64
	// reserved holds every output name handed out, for rename collisions.
	reserved map[string]bool
	stats    Stats
}

// New returns a Resolver with the given strategy.
func New(strategy Strategy) *Resolver {
	return &Resolver{
		strategy: strategy,
		seen:     make(map[string][]uint64),
		reserved: make(map[string]bool),
	}
}

// Register decides the fate of one artifact. The first occurrence of a
// filename wins the canonical name; identical content is skipped; differing
// content is renamed or skipped per strategy. Safe for concurrent use.
func (r *Resolver) Register(a Artifact) Decision {
	hash := a.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Found++

	hashes := r.seen[a.Filename]
	for _, h := range hashes {
		if h == hash {
			r.stats.DuplicatesSkipped++
			return Decision{Action: ActionSkipDuplicate}
		}
	}

	if len(hashes) == 0 {
		r.seen[a.Filename] = append(hashes, hash)
		r.reserved[a.Filename] = true
		return Decision{Action: ActionWrite, OutputName: a.Filename}
	}

	// Same name, new content.
	switch r.strategy {
	case StrategySkipConflicts:
		r.stats.ConflictsSkipped++
		return Decision{Action: ActionSkipConflict}
	case StrategySourceSuffix:
		suffix := "~from-" + sanitizeSource(a.SourceBinary)
		name := r.reserveRename(a.Filename, suffix)
		r.seen[a.Filename] = append(hashes, hash)
		r.stats.ConflictsRenamed++
		return Decision{Action: ActionWrite, OutputName: name, Renamed: true}
	default: // StrategyHashSuffix
		suffix := "~" + HexHash(hash)
		name := r.reserveRename(a.Filename, suffix)
		r.seen[a.Filename] = append(hashes, hash)
		r.stats.ConflictsRenamed++
		return Decision{Action: ActionWrite, OutputName: name, Renamed: true}
	}
}

// MarkWritten records a completed file write for the summary counters.
func (r *Resolver) MarkWritten() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Written++
}

// Stats returns a snapshot of the run counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// reserveRename appends suffix before the .proto extension and, if that name
// was already handed out for different content, adds a numeric discriminator
// (~2, ~3, ...). Caller holds r.mu.
func (r *Resolver) reserveRename(filename, suffix string) string {
	name := addSuffix(filename, suffix)
	for n := 2; r.reserved[name]; n++ {
		name = addSuffix(filename, fmt.Sprintf("%s~%d", suffix, n))
	}
	r.reserved[name] = true
	return name
}

// addSuffix inserts suffix before the .proto extension.
func addSuffix(filename, suffix string) string {
	if stem, ok := strings.CutSuffix(filename, ".proto"); ok {
		return stem + suffix + ".proto"
	}
	return filename + suffix
}

// sanitizeSource reduces a source binary path to a safe filename fragment:
// the basename with every byte outside [A-Za-z0-9_-] replaced by '_'.
func sanitizeSource(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		base = "unknown"
	}
	out := []byte(base)
	for i, b := range out {
		switch {
		case b >= 'a' && b <= 'z':
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '_' || b == '-':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
