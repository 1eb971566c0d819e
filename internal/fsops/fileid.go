// Package fsops holds the filesystem plumbing shared by scan backends:
// stable file ids, the id to path index of the last scan, and guarded
// deletion.
package fsops

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// FileID derives a stable id from a file's cleaned absolute path.
func FileID(path string) string {
	return strconv.FormatUint(xxhash.Sum64String(filepath.Clean(path)), 16)
}

// Index maps the file ids handed out by the last scan back to their paths.
type Index struct {
	mu    sync.RWMutex
	paths map[string]string
	roots []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{paths: make(map[string]string)}
}

// Reset replaces the index contents with a new scan's roots.
func (idx *Index) Reset(roots []string) {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		cleaned = append(cleaned, filepath.Clean(r))
	}

	idx.mu.Lock()
	idx.paths = make(map[string]string)
	idx.roots = cleaned
	idx.mu.Unlock()
}

// Add registers path and returns its id.
func (idx *Index) Add(path string) string {
	id := FileID(path)
	idx.mu.Lock()
	idx.paths[id] = filepath.Clean(path)
	idx.mu.Unlock()
	return id
}

// Lookup resolves an id to its path.
func (idx *Index) Lookup(id string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.paths[id]
	return p, ok
}

// Forget drops ids, typically after they were deleted.
func (idx *Index) Forget(ids ...string) {
	idx.mu.Lock()
	for _, id := range ids {
		delete(idx.paths, id)
	}
	idx.mu.Unlock()
}

// Roots returns the scan roots the index was built from.
func (idx *Index) Roots() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.roots...)
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.paths)
}
