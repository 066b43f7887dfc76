package driver

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"protosift/internal/binfmt"
	"protosift/internal/diag"
)

// ListCandidates walks dir and returns every file binfmt admits, sorted for
// a deterministic enqueue order. Hidden files and directories are skipped.
func ListCandidates(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if binfmt.IsCandidate(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ProcessDir runs the per-binary pipeline over every candidate under dir on
// a bounded worker pool. It returns the merged diagnostics and the number of
// candidates found; zero candidates is the caller's cue for a distinct exit
// code. A binary that fails on I/O is reported and skipped; the rest of the
// run continues. Cancellation is honored between binaries.
func (p *Pipeline) ProcessDir(ctx context.Context, dir string) (*diag.Bag, int, error) {
	files, err := ListCandidates(dir)
	if err != nil {
		return nil, 0, err
	}
	if len(files) == 0 {
		return diag.NewBag(1), 0, nil
	}

	jobs := p.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	merged := diag.NewBag(maxDiagnosticsPerBinary * len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			bag := diag.NewBag(maxDiagnosticsPerBinary)
			if err := p.ProcessBinary(ctx, path, bag); err != nil && ctx.Err() == nil {
				bag.Add(diag.Diagnostic{
					Severity: diag.SevError,
					Code:     diag.CodeIoFailure,
					Message:  err.Error(),
					Binary:   path,
					Offset:   -1,
				})
			}
			mu.Lock()
			merged.Merge(bag)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return merged, len(files), err
	}
	merged.Sort()
	return merged, len(files), nil
}
