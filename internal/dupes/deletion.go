package dupes

import (
	"context"
	"fmt"
)

// DeleteSelected sends every selected id to the backend in one batch and
// reconciles the store against the per-file results.
//
// Files that failed to delete stay in their group; no retry is attempted and
// a partial failure is not an error. The whole selection is cleared once the
// batch completes. If the batch call itself fails nothing is reconciled, the
// selection is kept and the error is returned wrapped in ErrDeleteFailed.
func (e *Engine) DeleteSelected(ctx context.Context) ([]DeleteResult, error) {
	e.mu.Lock()
	if len(e.selected) == 0 {
		e.mu.Unlock()
		return nil, ErrNoSelection
	}
	ids := e.selectedLocked()
	e.deletes++
	e.mu.Unlock()

	e.logger.Info().Int("files", len(ids)).Msg("deleting selected duplicates")

	results, err := e.backend.DeleteDuplicateFiles(ctx, ids)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes--

	if err != nil {
		e.logger.Error().Err(err).Int("files", len(ids)).Msg("delete batch failed")
		return nil, fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	requested := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}
	succeeded := succeededIDs(results)
	for id := range succeeded {
		if _, ok := requested[id]; !ok {
			e.logger.Warn().Str("id", id).Msg("ignoring delete result for id that was not requested")
			delete(succeeded, id)
		}
	}

	e.store.reconcile(succeeded)
	e.selected = make(map[string]struct{})

	failed := len(ids) - len(succeeded)
	ev := e.logger.Info()
	if failed > 0 {
		ev = e.logger.Warn()
	}
	ev.Int("deleted", len(succeeded)).
		Int("failed", failed).
		Int("groups", e.store.stats.TotalGroups).
		Int64("wasted_bytes", e.store.stats.WastedSpace).
		Msg("delete batch reconciled")

	return results, nil
}

// Deleting reports whether a delete batch is in flight.
func (e *Engine) Deleting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deletes > 0
}

// Searching reports whether a scan is in flight.
func (e *Engine) Searching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searching
}
