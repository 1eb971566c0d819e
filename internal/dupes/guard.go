package dupes

import (
	"context"
	"sync"
)

// ScanGuard lets a backend track which generation owns the in-flight scan.
// A call for an older generation than one already admitted never cancels
// the newer scan and never publishes its results.
type ScanGuard struct {
	mu      sync.Mutex
	current uint64
	cancel  context.CancelFunc
}

// Begin admits a scan for generation. It cancels the scan it replaces and
// returns context.Canceled without starting anything when generation is
// older than the latest admitted one. done must be called when the scan ends.
func (g *ScanGuard) Begin(ctx context.Context, generation uint64) (context.Context, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if generation < g.current {
		return nil, nil, context.Canceled
	}
	if g.cancel != nil {
		g.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	g.current = generation
	g.cancel = cancel

	done := func() {
		cancel()
		g.mu.Lock()
		if g.current == generation {
			g.cancel = nil
		}
		g.mu.Unlock()
	}
	return ctx, done, nil
}

// Cancel stops the scan in flight, if any.
func (g *ScanGuard) Cancel() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Commit runs fn while generation is still the latest admitted one and
// reports whether it ran. Publishing shared state from fn cannot race with
// a newer Begin.
func (g *ScanGuard) Commit(generation uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if generation != g.current {
		return false
	}
	fn()
	return true
}
