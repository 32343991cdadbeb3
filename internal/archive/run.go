// Package archive lays out the timestamped directory each run writes into.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxSameSecondRuns bounds the suffixes tried when runs share a start second.
const maxSameSecondRuns = 100

// Run identifies one pipeline execution.
type Run struct {
	ID        uuid.UUID
	StartedAt time.Time
	Dir       string
}

// NewRun creates <dataDir>/<Y-M-D>/<H>h<M>m<S>s for a run started at now.
// The timestamp is truncated to whole seconds so the directory name and the
// stored stamp agree. A run never reuses an existing directory: later runs in
// the same second get a -2, -3, ... suffix.
func NewRun(dataDir string, now time.Time) (Run, error) {
	started := now.Truncate(time.Second)
	day := filepath.Join(dataDir, DayDir(started))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return Run{}, fmt.Errorf("failed to create run directory %s: %w", day, err)
	}

	base := filepath.Join(day, TimeDir(started))
	dir := base
	for attempt := 1; ; attempt++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return Run{}, fmt.Errorf("failed to create run directory %s: %w", dir, err)
		}
		if attempt >= maxSameSecondRuns {
			return Run{}, fmt.Errorf("run directory %s already used %d times", base, attempt)
		}
		dir = fmt.Sprintf("%s-%d", base, attempt+1)
	}
	return Run{ID: uuid.New(), StartedAt: started, Dir: dir}, nil
}

// Existing wraps a directory produced by an earlier run so it can be reloaded
// under a fresh stamp.
func Existing(dir string, now time.Time) (Run, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Run{}, fmt.Errorf("failed to open run directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Run{}, fmt.Errorf("%s is not a directory", dir)
	}
	return Run{ID: uuid.New(), StartedAt: now.Truncate(time.Second), Dir: dir}, nil
}

// DayDir renders the per-day directory name, e.g. 2008-8-17.
func DayDir(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
}

// TimeDir renders the per-run directory name, e.g. 9h5m30s.
func TimeDir(t time.Time) string {
	return fmt.Sprintf("%dh%dm%ds", t.Hour(), t.Minute(), t.Second())
}

// Path joins name onto the run directory.
func (r Run) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// XMLFiles lists the .xml files directly inside dir, sorted by name.
func XMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// CollectXML expands a mix of files and directories into a de-duplicated list of
// XML paths. Directory contents are sorted; argument order is kept.
func CollectXML(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		var found []string
		if info.IsDir() {
			found, err = XMLFiles(p)
			if err != nil {
				return nil, err
			}
		} else {
			found = []string{p}
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}
