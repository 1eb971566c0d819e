package dupes

import (
	"context"
	"fmt"
)

// StartSearch clears the current view, marks the engine as searching and
// runs one backend scan. It blocks until the backend returns.
//
// A result is applied only if no newer search, cancel or reset happened in
// the meantime; otherwise it is dropped and StartSearch returns nil.
// A backend failure leaves the already cleared view in place and is
// returned wrapped in ErrScanFailed.
func (e *Engine) StartSearch(ctx context.Context) error {
	return e.runSearch(ctx, e.beginSearch()).Err
}

// SearchOutcome describes how a search started with Search ended.
type SearchOutcome struct {
	Generation uint64
	// Applied is false when a newer search, cancel or reset made the
	// result stale.
	Applied bool
	Stats   Stats
	Err     error
}

// Search starts a scan in the background and returns its generation. The
// channel receives exactly one outcome and is then closed.
func (e *Engine) Search(ctx context.Context) (uint64, <-chan SearchOutcome) {
	gen := e.beginSearch()
	ch := make(chan SearchOutcome, 1)
	go func() {
		defer close(ch)
		ch <- e.runSearch(ctx, gen)
	}()
	return gen, ch
}

func (e *Engine) beginSearch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.clearLocked()
	e.searching = true
	e.state = StateAnalyzing
	e.lastError = ""
	return e.generation
}

func (e *Engine) runSearch(ctx context.Context, gen uint64) SearchOutcome {
	e.logger.Info().Uint64("generation", gen).Msg("duplicate search started")

	res, err := e.backend.FindDuplicates(ctx, gen)

	e.mu.Lock()
	defer e.mu.Unlock()

	out := SearchOutcome{Generation: gen}
	if gen != e.generation {
		e.logger.Debug().
			Uint64("generation", gen).
			Uint64("current", e.generation).
			Bool("failed", err != nil).
			Msg("discarding stale scan result")
		return out
	}

	out.Applied = true
	e.searching = false
	e.progress = nil

	if err != nil {
		e.state = StateError
		e.lastError = err.Error()
		e.logger.Error().Err(err).Uint64("generation", gen).Msg("duplicate search failed")
		out.Err = fmt.Errorf("%w: %w", ErrScanFailed, err)
		return out
	}

	groups, stats, rejected := sanitizeResult(res)
	for _, rerr := range rejected {
		e.logger.Warn().Err(rerr).Uint64("generation", gen).Msg("rejected duplicate group from backend")
	}
	if res != nil && len(rejected) == 0 && res.Stats != stats {
		e.logger.Warn().
			Interface("reported", res.Stats).
			Interface("computed", stats).
			Msg("backend stats disagree with groups, using computed stats")
	}

	e.store.replace(groups, stats)
	e.hasSearched = true
	e.state = StateComplete
	out.Stats = stats

	e.logger.Info().
		Uint64("generation", gen).
		Int("groups", stats.TotalGroups).
		Int("redundant_files", stats.TotalFiles).
		Int64("wasted_bytes", stats.WastedSpace).
		Msg("duplicate search complete")
	return out
}

// CancelSearch signals the backend and immediately clears the searching flag
// and progress. It does not wait for the backend; the in-flight result, if
// it still arrives, is discarded.
func (e *Engine) CancelSearch() {
	e.mu.Lock()
	wasSearching := e.searching
	if wasSearching {
		e.generation++
		e.searching = false
		e.progress = nil
		e.state = StateCancelled
	}
	gen := e.generation
	e.mu.Unlock()

	e.backend.CancelDuplicateSearch()

	if wasSearching {
		e.logger.Info().Uint64("generation", gen).Msg("duplicate search cancelled")
	}
}

// SetProgress replaces the progress snapshot. No coalescing or monotonicity
// checks are made.
func (e *Engine) SetProgress(p ScanProgress) {
	e.mu.Lock()
	e.setProgressLocked(p)
	e.mu.Unlock()
}

func (e *Engine) setProgressLocked(p ScanProgress) {
	e.progress = &p
	if !e.searching {
		return
	}
	switch p.Phase {
	case PhaseAnalyzing:
		e.state = StateAnalyzing
	case PhaseHashing:
		e.state = StateHashing
	}
}

// handleProgress is the backend's progress subscriber.
func (e *Engine) handleProgress(ev ProgressEvent) {
	e.mu.Lock()
	if ev.Generation != e.generation || !e.searching {
		e.mu.Unlock()
		return
	}
	e.setProgressLocked(ev.Progress)
	listener := e.onProgress
	e.mu.Unlock()

	if listener != nil {
		listener(ev)
	}
}
