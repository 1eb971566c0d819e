package dupes

import "context"

// Backend performs the filesystem side of duplicate detection: walking,
// size bucketing, digesting and deleting.
type Backend interface {
	// FindDuplicates runs a one-shot scan. Progress for this call must be
	// tagged with generation.
	FindDuplicates(ctx context.Context, generation uint64) (*ScanResult, error)

	// CancelDuplicateSearch asks the in-flight scan to stop. Best effort,
	// no acknowledgment.
	CancelDuplicateSearch()

	// DeleteDuplicateFiles deletes a batch of file ids. Results may come back
	// in any order; a per-file failure is reported in the result, not as err.
	DeleteDuplicateFiles(ctx context.Context, ids []string) ([]DeleteResult, error)

	// SetProgressHandler registers the single progress subscriber.
	SetProgressHandler(fn func(ProgressEvent))
}
