package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRunLayout(t *testing.T) {
	data := t.TempDir()
	started := time.Date(2008, time.August, 7, 9, 5, 3, 987654321, time.UTC)

	run, err := NewRun(data, started)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(data, "2008-8-7", "9h5m3s")
	if run.Dir != want {
		t.Fatalf("expected run dir %s, got %s", want, run.Dir)
	}
	if info, err := os.Stat(run.Dir); err != nil || !info.IsDir() {
		t.Fatalf("expected run dir to exist: %v", err)
	}
	if !run.StartedAt.Equal(time.Date(2008, time.August, 7, 9, 5, 3, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", run.StartedAt)
	}
	if run.StartedAt.Nanosecond() != 0 {
		t.Fatalf("expected stamp truncated to seconds, got %v", run.StartedAt)
	}
	if run.Path("contribs.db") != filepath.Join(want, "contribs.db") {
		t.Fatalf("unexpected path %s", run.Path("contribs.db"))
	}
}

func TestNewRunSameSecondGetsFreshDirectory(t *testing.T) {
	data := t.TempDir()
	first, err := NewRun(data, time.Date(2008, time.August, 7, 9, 5, 3, 0, time.UTC))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := NewRun(data, time.Date(2008, time.August, 7, 9, 5, 3, 500000000, time.UTC))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	third, err := NewRun(data, time.Date(2008, time.August, 7, 9, 5, 3, 900000000, time.UTC))
	if err != nil {
		t.Fatalf("third run: %v", err)
	}

	if second.Dir != first.Dir+"-2" || third.Dir != first.Dir+"-3" {
		t.Fatalf("expected suffixed directories, got %s, %s, %s", first.Dir, second.Dir, third.Dir)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("expected shared stamp, got %v and %v", first.StartedAt, second.StartedAt)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct run ids")
	}
}

func TestExistingRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Existing(dir, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Existing(file, time.Now()); err == nil {
		t.Fatalf("expected error for a plain file")
	}
	if _, err := Existing(filepath.Join(dir, "missing"), time.Now()); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}

func TestCollectXML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xml", "a.XML", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.xml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	extra := filepath.Join(t.TempDir(), "c.xml")
	if err := os.WriteFile(extra, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := CollectXML([]string{dir, extra, filepath.Join(dir, "b.xml")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{filepath.Join(dir, "a.XML"), filepath.Join(dir, "b.xml"), extra}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if _, err := CollectXML([]string{filepath.Join(dir, "missing.xml")}); err == nil {
		t.Fatalf("expected error for a missing path")
	}
}
