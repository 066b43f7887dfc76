package resolve

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func art(filename, content, source string) Artifact {
	return Artifact{Filename: filename, Content: []byte(content), SourceBinary: source}
}

func TestFirstOccurrenceKeepsCanonicalName(t *testing.T) {
	r := New(StrategyHashSuffix)
	d := r.Register(art("cfg.proto", "syntax A", "bin/a"))
	if d.Action != ActionWrite || d.OutputName != "cfg.proto" || d.Renamed {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestExactDuplicateSkipped(t *testing.T) {
	r := New(StrategyHashSuffix)
	r.Register(art("cfg.proto", "same", "bin/a"))
	d := r.Register(art("cfg.proto", "same", "bin/b"))
	if d.Action != ActionSkipDuplicate {
		t.Fatalf("duplicate not skipped: %+v", d)
	}
	s := r.Stats()
	if s.Found != 2 || s.DuplicatesSkipped != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestConflictHashSuffix(t *testing.T) {
	r := New(StrategyHashSuffix)
	r.Register(art("cfg.proto", "content A", "bin/a"))
	b := art("cfg.proto", "content B", "bin/b")
	d := r.Register(b)
	if d.Action != ActionWrite || !d.Renamed {
		t.Fatalf("conflict not renamed: %+v", d)
	}
	want := "cfg~" + HexHash(b.Hash()) + ".proto"
	if d.OutputName != want {
		t.Fatalf("output = %q, want %q", d.OutputName, want)
	}
	if s := r.Stats(); s.ConflictsRenamed != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestConflictSourceSuffix(t *testing.T) {
	r := New(StrategySourceSuffix)
	r.Register(art("cfg.proto", "content A", "bin/a"))
	d := r.Register(art("cfg.proto", "content B", "/opt/my app.v2"))
	if d.OutputName != "cfg~from-my_app_v2.proto" {
		t.Fatalf("output = %q", d.OutputName)
	}
}

func TestConflictSkip(t *testing.T) {
	r := New(StrategySkipConflicts)
	r.Register(art("cfg.proto", "content A", "bin/a"))
	d := r.Register(art("cfg.proto", "content B", "bin/b"))
	if d.Action != ActionSkipConflict {
		t.Fatalf("conflict not skipped: %+v", d)
	}
	s := r.Stats()
	if s.ConflictsSkipped != 1 || s.ConflictsRenamed != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRenameCollisionGetsDiscriminator(t *testing.T) {
	r := New(StrategySourceSuffix)
	r.Register(art("cfg.proto", "v1", "bin/app"))
	first := r.Register(art("cfg.proto", "v2", "other/app"))
	second := r.Register(art("cfg.proto", "v3", "third/app"))
	if first.OutputName != "cfg~from-app.proto" {
		t.Fatalf("first rename = %q", first.OutputName)
	}
	if second.OutputName != "cfg~from-app~2.proto" {
		t.Fatalf("second rename = %q", second.OutputName)
	}
}

func TestPathComponentsPreserved(t *testing.T) {
	r := New(StrategyHashSuffix)
	r.Register(art("google/protobuf/any.proto", "v1", "a"))
	d := r.Register(art("google/protobuf/any.proto", "v2", "b"))
	if !strings.HasPrefix(d.OutputName, "google/protobuf/any~") || !strings.HasSuffix(d.OutputName, ".proto") {
		t.Fatalf("rename lost path components: %q", d.OutputName)
	}
}

func TestConflictArithmetic(t *testing.T) {
	r := New(StrategyHashSuffix)
	contents := []string{"a", "b", "a", "c", "b", "d"}
	for i, c := range contents {
		d := r.Register(art("x.proto", c, fmt.Sprintf("bin%d", i)))
		if d.Action == ActionWrite {
			r.MarkWritten()
		}
	}
	s := r.Stats()
	if s.Found != len(contents) {
		t.Fatalf("found = %d, want %d", s.Found, len(contents))
	}
	if s.Written+s.DuplicatesSkipped != s.Found {
		t.Fatalf("written(%d) + duplicates(%d) != found(%d)", s.Written, s.DuplicatesSkipped, s.Found)
	}
	if s.ConflictsRenamed != 3 {
		t.Fatalf("conflicts renamed = %d, want 3", s.ConflictsRenamed)
	}
}

func TestConflictArithmeticSkipStrategy(t *testing.T) {
	r := New(StrategySkipConflicts)
	contents := []string{"a", "b", "a", "c"}
	for i, c := range contents {
		d := r.Register(art("x.proto", c, fmt.Sprintf("bin%d", i)))
		if d.Action == ActionWrite {
			r.MarkWritten()
		}
	}
	s := r.Stats()
	if s.Written+s.DuplicatesSkipped+s.ConflictsSkipped != s.Found {
		t.Fatalf("counter identity broken: %+v", s)
	}
	if s.Written != 1 || s.ConflictsSkipped != 2 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestConcurrentRegisterIsSerialized(t *testing.T) {
	r := New(StrategyHashSuffix)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := r.Register(art("x.proto", fmt.Sprintf("content-%d", i%4), "bin"))
			if d.Action == ActionWrite {
				r.MarkWritten()
			}
		}(i)
	}
	wg.Wait()
	s := r.Stats()
	if s.Found != 32 {
		t.Fatalf("found = %d, want 32", s.Found)
	}
	if s.Written != 4 || s.DuplicatesSkipped != 28 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestSummaryLine(t *testing.T) {
	s := Stats{Found: 5, DuplicatesSkipped: 2, ConflictsRenamed: 1, Written: 3}
	want := "Summary: 5 found, 2 duplicates skipped, 1 conflicts renamed, 3 written"
	if got := s.Summary(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, ok := range []string{"hash-suffix", "source-suffix", "skip-conflicts"} {
		if _, err := ParseStrategy(ok); err != nil {
			t.Fatalf("ParseStrategy(%q) failed: %v", ok, err)
		}
	}
	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatalf("bogus strategy accepted")
	}
}

func TestHexHashFormat(t *testing.T) {
	h := HexHash(0x1)
	if h != "00000001" {
		t.Fatalf("got %q, want zero-padded 8 hex chars", h)
	}
	if len(HexHash(art("a.proto", "x", "b").Hash())) != 8 {
		t.Fatalf("hash suffix must be 8 chars")
	}
}
