package dupes

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Engine owns the duplicate groups, the selection set and the search and
// delete flags. All state transitions go through mu.
type Engine struct {
	backend Backend
	logger  zerolog.Logger

	mu          sync.Mutex
	store       *groupStore
	selected    map[string]struct{}
	progress    *ScanProgress
	state       SearchState
	searching   bool
	deletes     int // delete batches in flight
	hasSearched bool
	generation  uint64
	lastError   string

	onProgress func(ProgressEvent)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgressListener receives every progress event the engine accepts,
// after stale generations have been filtered out.
func WithProgressListener(fn func(ProgressEvent)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// New creates an engine and registers it as the backend's progress handler.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		logger:   zerolog.Nop(),
		store:    newGroupStore(),
		selected: make(map[string]struct{}),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	backend.SetProgressHandler(e.handleProgress)
	return e
}

// Reset discards groups, stats, progress and the selection and returns to
// Idle. Any scan still in flight becomes stale.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.clearLocked()
	e.searching = false
	e.hasSearched = false
	e.state = StateIdle
	e.lastError = ""
}

func (e *Engine) clearLocked() {
	e.store.clear()
	e.progress = nil
	e.selected = make(map[string]struct{})
}

// Snapshot returns a copy of the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups, stats := e.store.snapshot()
	snap := Snapshot{
		State:       e.state,
		Searching:   e.searching,
		Deleting:    e.deletes > 0,
		HasSearched: e.hasSearched,
		Generation:  e.generation,
		Groups:      groups,
		Stats:       stats,
		Selected:    e.selectedLocked(),
		LastError:   e.lastError,
	}
	if e.progress != nil {
		p := *e.progress
		snap.Progress = &p
	}
	return snap
}

// Groups returns a copy of the current groups.
func (e *Engine) Groups() []DuplicateGroup {
	e.mu.Lock()
	defer e.mu.Unlock()
	groups, _ := e.store.snapshot()
	return groups
}

// Group returns a copy of one group by hash.
func (e *Engine) Group(hash string) (DuplicateGroup, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.store.group(hash)
	if !ok {
		return DuplicateGroup{}, false
	}
	return copyGroup(g), true
}

// Stats returns the current aggregate statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.stats
}

// Selected returns the selected file ids in sorted order.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedLocked()
}

func (e *Engine) selectedLocked() []string {
	ids := make([]string, 0, len(e.selected))
	for id := range e.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
