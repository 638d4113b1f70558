// Package index holds the per-run mapping from content-relative path to the
// freshly computed size and checksum of every file under the content root.
package index

import (
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/henrycmeen/dimo/internal/checksum"
)

// FileRecord describes one file found under the content root.
type FileRecord struct {
	RelativePath string // slash separated, relative to the content root
	AbsolutePath string
	Size         int64
	Checksum     string
	Algorithm    checksum.Algorithm
}

// Name is the final path segment.
func (r FileRecord) Name() string {
	return path.Base(r.RelativePath)
}

// FoldCase reports whether the current platform treats paths case-insensitively.
func FoldCase() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// Builder accumulates records from concurrent scan workers.
type Builder struct {
	mu       sync.Mutex
	foldCase bool
	records  map[string]FileRecord
}

func NewBuilder(foldCase bool) *Builder {
	return &Builder{
		foldCase: foldCase,
		records:  make(map[string]FileRecord),
	}
}

// Add inserts a record. It is safe for concurrent use. Two records whose keys
// collide (only possible with case folding) are reported as an error.
func (b *Builder) Add(rec FileRecord) error {
	key := normKey(rec.RelativePath, b.foldCase)

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.records[key]; ok && prev.RelativePath != rec.RelativePath {
		return fmt.Errorf("paths %q and %q collide on a case-insensitive filesystem", prev.RelativePath, rec.RelativePath)
	}
	b.records[key] = rec
	return nil
}

// Len returns the number of records added so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Freeze returns the immutable index. The builder must not be used afterwards.
func (b *Builder) Freeze() *Index {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := &Index{
		foldCase: b.foldCase,
		byPath:   b.records,
		byName:   make(map[string][]string),
	}
	var total int64
	for key, rec := range b.records {
		name := normKey(rec.Name(), b.foldCase)
		idx.byName[name] = append(idx.byName[name], key)
		total += rec.Size
	}
	for name := range idx.byName {
		keys := idx.byName[name]
		sort.Slice(keys, func(i, j int) bool {
			return idx.byPath[keys[i]].RelativePath < idx.byPath[keys[j]].RelativePath
		})
	}
	idx.totalSize = total
	b.records = nil
	return idx
}

// Index is read-only after Freeze and safe to share between goroutines.
type Index struct {
	foldCase  bool
	byPath    map[string]FileRecord
	byName    map[string][]string // name -> keys sorted by RelativePath
	totalSize int64
}

// Len returns the number of indexed files.
func (i *Index) Len() int {
	return len(i.byPath)
}

// TotalSize returns the sum of all indexed file sizes.
func (i *Index) TotalSize() int64 {
	return i.totalSize
}

// Lookup finds the record stored under relPath.
func (i *Index) Lookup(relPath string) (FileRecord, bool) {
	rec, ok := i.byPath[normKey(relPath, i.foldCase)]
	return rec, ok
}

// ByName returns every record whose final path segment equals name, ordered
// by relative path so that callers can pick deterministically.
func (i *Index) ByName(name string) []FileRecord {
	keys := i.byName[normKey(name, i.foldCase)]
	if len(keys) == 0 {
		return nil
	}
	out := make([]FileRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, i.byPath[k])
	}
	return out
}

// Paths returns every relative path in sorted order.
func (i *Index) Paths() []string {
	out := make([]string, 0, len(i.byPath))
	for _, rec := range i.byPath {
		out = append(out, rec.RelativePath)
	}
	sort.Strings(out)
	return out
}

// Key returns the lookup key for relPath, as used by Lookup.
func (i *Index) Key(relPath string) string {
	return normKey(relPath, i.foldCase)
}

func normKey(p string, foldCase bool) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	if foldCase {
		p = strings.ToLower(p)
	}
	return p
}
