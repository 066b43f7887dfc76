// Package driver wires the extraction pipeline together: read a binary, scan
// it for descriptors, decode and render each hit, then hand the artifacts to
// the conflict resolver and the output tree. Per-descriptor failures become
// diagnostics; only I/O failures abort the current binary.
package driver

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	"protosift/internal/diag"
	"protosift/internal/render"
	"protosift/internal/resolve"
	"protosift/internal/scanner"
	"protosift/internal/schema"
)

// maxBinarySize caps the whole-file read, matching binfmt's admission bound.
const maxBinarySize = 500 << 20

// maxDiagnosticsPerBinary caps the bag for one binary.
const maxDiagnosticsPerBinary = 256

// Format selects what the pipeline emits per descriptor.
type Format string

const (
	// FormatProto writes reconstructed .proto files.
	FormatProto Format = "proto"
	// FormatFilename prints descriptor filenames only, for scripting.
	FormatFilename Format = "filename"
)

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatProto, FormatFilename:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (expected proto|filename)", s)
}

// Options configures a run.
type Options struct {
	OutputDir      string
	Force          bool
	DryRun         bool
	ListOnly       bool
	Format         Format
	MaxDescriptors int
	MinFilenameLen int
	MaxFilenameLen int
	Jobs           int
	Verbosity      int
	Quiet          bool
	Color          bool
}

// Pipeline runs extractions against a shared resolver. One Pipeline spans a
// whole run; its methods are safe to call from the directory worker pool.
type Pipeline struct {
	opts     Options
	resolver *resolve.Resolver
	cache    *Cache // nil when caching is off

	out    io.Writer
	errOut io.Writer

	// writeMu serializes name reservation together with the file write that
	// consumes the reserved name.
	writeMu sync.Mutex

	warnColor *color.Color
}

// New returns a Pipeline writing normal output to out and diagnostics to
// errOut.
func New(opts Options, resolver *resolve.Resolver, cache *Cache, out, errOut io.Writer) *Pipeline {
	warn := color.New(color.FgYellow)
	if !opts.Color {
		warn.DisableColor()
	}
	return &Pipeline{
		opts:      opts,
		resolver:  resolver,
		cache:     cache,
		out:       out,
		errOut:    errOut,
		warnColor: warn,
	}
}

// Resolver exposes the run counters for the summary line.
func (p *Pipeline) Resolver() *resolve.Resolver {
	return p.resolver
}

// ProcessBinary extracts every descriptor from one binary. Per-descriptor
// problems land in bag; the returned error is reserved for I/O failures on
// the binary itself.
func (p *Pipeline) ProcessBinary(ctx context.Context, path string, bag *diag.Bag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > maxBinarySize {
		return fmt.Errorf("%s: %d bytes exceeds the %d byte limit", path, info.Size(), maxBinarySize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	p.debugf("read %d bytes from %s", len(data), path)

	if p.cache != nil {
		key := CacheKey(sha256.Sum256(data))
		if arts, ok := p.cache.Get(key); ok {
			p.debugf("cache hit for %s (%d artifacts)", path, len(arts))
			for _, a := range arts {
				p.emit(resolve.Artifact{Filename: a.Filename, Content: a.Content, SourceBinary: path}, bag)
			}
			return nil
		}
	}

	var cached []CachedArtifact
	sc := scanner.New(data, scanner.Config{
		MaxDescriptors: p.opts.MaxDescriptors,
		MinFilenameLen: p.opts.MinFilenameLen,
		MaxFilenameLen: p.opts.MaxFilenameLen,
	})
	found := 0
	for {
		hit, ok := sc.Next()
		if !ok {
			break
		}
		found++
		p.debugf("descriptor candidate %s at [%d, %d) in %s", hit.Filename, hit.Start, hit.End, path)

		model, err := schema.Decode(hit.Bytes(data))
		if err != nil {
			code := diag.CodeDecodeFailure
			if isInvalidSchema(err) {
				code = diag.CodeInvalidSchema
			}
			bag.Add(diag.Diagnostic{
				Severity:   diag.SevWarning,
				Code:       code,
				Message:    err.Error(),
				Binary:     path,
				Descriptor: hit.Filename,
				Offset:     int64(hit.Start),
			})
			continue
		}
		if !strings.HasSuffix(model.Name, ".proto") {
			continue
		}

		content := []byte(render.File(model))
		art := resolve.Artifact{Filename: model.Name, Content: content, SourceBinary: path}
		if p.cache != nil {
			cached = append(cached, CachedArtifact{Filename: model.Name, Content: content})
		}
		p.emit(art, bag)
	}

	p.infof("%s: %d descriptor(s) extracted", path, found)

	if p.cache != nil {
		key := CacheKey(sha256.Sum256(data))
		if err := p.cache.Put(key, cached); err != nil {
			p.debugf("cache store failed for %s: %v", path, err)
		}
	}
	return nil
}

// emit routes one artifact through list/filename short-circuits or the
// resolver and output tree.
func (p *Pipeline) emit(art resolve.Artifact, bag *diag.Bag) {
	if p.opts.ListOnly || p.opts.Format == FormatFilename {
		fmt.Fprintln(p.out, art.Filename)
		return
	}
	p.resolveAndWrite(art, bag)
}

// resolveAndWrite reserves an output name and writes the file under the same
// critical section, so two binaries cannot race one reserved name.
func (p *Pipeline) resolveAndWrite(art resolve.Artifact, bag *diag.Bag) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	d := p.resolver.Register(art)
	switch d.Action {
	case resolve.ActionSkipDuplicate:
		p.debugf("duplicate skipped: %s", art.Filename)
		return
	case resolve.ActionSkipConflict:
		p.warnf("conflict skipped: %s (differing content from %s)", art.Filename, art.SourceBinary)
		return
	}

	if !filepath.IsLocal(filepath.FromSlash(d.OutputName)) {
		bag.Add(diag.Diagnostic{
			Severity:   diag.SevWarning,
			Code:       diag.CodeInvalidSchema,
			Message:    "descriptor filename escapes the output directory",
			Binary:     art.SourceBinary,
			Descriptor: art.Filename,
			Offset:     -1,
		})
		return
	}
	target := filepath.Join(p.opts.OutputDir, filepath.FromSlash(d.OutputName))

	if p.opts.DryRun {
		fmt.Fprintf(p.out, "Would write: %s\n", target)
		return
	}

	if err := writeProtoFile(target, art.Content, p.opts.Force); err != nil {
		bag.Add(diag.Diagnostic{
			Severity:   diag.SevWarning,
			Code:       diag.CodeIoFailure,
			Message:    err.Error(),
			Binary:     art.SourceBinary,
			Descriptor: art.Filename,
			Offset:     -1,
		})
		return
	}
	p.resolver.MarkWritten()
	if !p.opts.Quiet {
		fmt.Fprintf(p.out, "Wrote %s\n", target)
	}
}

// writeProtoFile creates parent directories and writes content. Existing
// files are preserved unless force is set.
func writeProtoFile(target string, content []byte, force bool) error {
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if !force {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", target)
		}
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func isInvalidSchema(err error) bool {
	return errors.Is(err, schema.ErrInvalidSchema)
}

func (p *Pipeline) infof(format string, args ...any) {
	if p.opts.Verbosity >= 1 && !p.opts.Quiet {
		fmt.Fprintf(p.errOut, format+"\n", args...)
	}
}

func (p *Pipeline) debugf(format string, args ...any) {
	if p.opts.Verbosity >= 2 && !p.opts.Quiet {
		fmt.Fprintf(p.errOut, format+"\n", args...)
	}
}

func (p *Pipeline) warnf(format string, args ...any) {
	if p.opts.Quiet {
		return
	}
	p.warnColor.Fprintf(p.errOut, format+"\n", args...)
}
