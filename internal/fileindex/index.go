// Package fileindex maintains the on-disk CSV search index over the file
// area and implements the AND-of-terms / literal-phrase search described in
// §4.4 "Search index".
package fileindex

import (
	"encoding/csv"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexusbbs/nexusd/internal/logging"
)

var log = logging.For("fileindex")

// MinQueryBytes and MaxQueryBytes bound a trimmed search query (§4.4).
const (
	MinQueryBytes = 3
	MaxQueryBytes = 256
	MaxResults    = 100
)

// Entry is one row of the index (§4.4 "columns path,name,size,modified,is_directory").
type Entry struct {
	Path        string
	Name        string
	Size        int64
	Modified    time.Time
	IsDirectory bool
}

// Index holds the in-memory copy of the CSV index plus the path it
// persists to. Rebuilds replace the in-memory slice atomically under mu.
type Index struct {
	mu       sync.RWMutex
	rebuild  sync.Mutex // serializes Rebuild calls
	entries  []Entry
	dirty    bool
	path     string
	root     string
	interval time.Duration
}

// New constructs an Index that persists to idxPath and walks root on
// rebuild.
func New(idxPath, root string, reindexInterval time.Duration) *Index {
	return &Index{path: idxPath, root: root, interval: reindexInterval}
}

// MarkDirty flags that a file mutation occurred, to be picked up by the
// next timer tick (§4.4 "any mutation sets a dirty flag").
func (idx *Index) MarkDirty() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
}

func (idx *Index) isDirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty
}

// Rebuild walks root and replaces the in-memory index, then persists it to
// idx.path as CSV. Safe to call concurrently with Search and with another
// Rebuild: concurrent rebuilds run one at a time.
func (idx *Index) Rebuild() error {
	idx.rebuild.Lock()
	defer idx.rebuild.Unlock()

	var entries []Entry
	err := filepath.WalkDir(idx.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the walk
		}
		if p == idx.root {
			return nil
		}
		rel, err := filepath.Rel(idx.root, p)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{
			Path:        filepath.ToSlash(rel),
			Name:        d.Name(),
			Size:        info.Size(),
			Modified:    info.ModTime(),
			IsDirectory: d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.dirty = false
	idx.mu.Unlock()

	return idx.persist(entries)
}

func (idx *Index) persist(entries []Entry) error {
	if idx.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(idx.path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	for _, e := range entries {
		row := []string{
			e.Path, e.Name,
			strconv.FormatInt(e.Size, 10),
			e.Modified.UTC().Format(time.RFC3339),
			strconv.FormatBool(e.IsDirectory),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// Load reads a previously persisted index from disk, used at startup before
// the first background rebuild completes.
func (idx *Index) Load() error {
	f, err := os.Open(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 5
	rows, err := r.ReadAll()
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		size, _ := strconv.ParseInt(row[2], 10, 64)
		modified, _ := time.Parse(time.RFC3339, row[3])
		isDir, _ := strconv.ParseBool(row[4])
		entries = append(entries, Entry{
			Path: row[0], Name: row[1], Size: size, Modified: modified, IsDirectory: isDir,
		})
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()
	return nil
}

// RunHousekeeping starts the periodic dirty-triggered rebuild ticker
// (§4.4: "a configurable timer (default 5 min, 0=off) rebuilds if dirty").
// It blocks until stop is closed; run it in its own goroutine.
func (idx *Index) RunHousekeeping(stop <-chan struct{}) {
	if idx.interval <= 0 {
		return
	}
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if idx.isDirty() {
				if err := idx.Rebuild(); err != nil {
					log.WithError(err).Warn("scheduled reindex failed")
				}
			}
		}
	}
}

// normalizeQuery trims and validates a search query's byte length.
func normalizeQuery(q string) (string, bool) {
	q = strings.TrimSpace(q)
	if len(q) < MinQueryBytes || len(q) > MaxQueryBytes {
		return "", false
	}
	return q, true
}

// Search implements §4.4's AND-of-terms / literal-phrase query semantics.
// ok is false when the (already trimmed) query fails the length bounds.
func (idx *Index) Search(query string) (results []Entry, ok bool) {
	q, ok := normalizeQuery(query)
	if !ok {
		return nil, false
	}

	terms := strings.Fields(q)
	var longTerms []string
	for _, t := range terms {
		if len(t) >= 3 {
			longTerms = append(longTerms, t)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matched []Entry
	if len(longTerms) > 0 {
		var patterns []*regexp.Regexp
		for _, t := range terms {
			if len(t) < 2 {
				continue
			}
			patterns = append(patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(t)))
		}
		for _, e := range idx.entries {
			if matchesAll(e.Name, patterns) {
				matched = append(matched, e)
			}
		}
	} else {
		pattern := regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))
		for _, e := range idx.entries {
			if pattern.MatchString(e.Name) {
				matched = append(matched, e)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].IsDirectory != matched[j].IsDirectory {
			return matched[i].IsDirectory // directories rank first
		}
		return matched[i].Name < matched[j].Name
	})

	if len(matched) > MaxResults {
		matched = matched[:MaxResults]
	}
	return matched, true
}

func matchesAll(name string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if !p.MatchString(name) {
			return false
		}
	}
	return true
}
