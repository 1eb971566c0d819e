package fclones

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/dupes"
	"github.com/lyallcooper/mediadupes/internal/fsops"
)

// Backend adapts the fclones CLI to dupes.Backend. Grouping is done by
// fclones; deletion goes through the shared remover.
type Backend struct {
	executor ExecutorInterface
	opts     ScanOptions
	remover  *fsops.Remover

	guard   dupes.ScanGuard
	mu      sync.Mutex
	handler func(dupes.ProgressEvent)
}

// NewBackend creates an fclones-backed duplicate finder.
func NewBackend(executor ExecutorInterface, opts ScanOptions, remover *fsops.Remover) *Backend {
	return &Backend{executor: executor, opts: opts, remover: remover}
}

func (b *Backend) SetProgressHandler(fn func(dupes.ProgressEvent)) {
	b.mu.Lock()
	b.handler = fn
	b.mu.Unlock()
}

// CancelDuplicateSearch kills the running fclones process, if any.
func (b *Backend) CancelDuplicateSearch() {
	b.guard.Cancel()
}

func (b *Backend) DeleteDuplicateFiles(ctx context.Context, ids []string) ([]dupes.DeleteResult, error) {
	return b.remover.DeleteBatch(ctx, ids)
}

// FindDuplicates runs fclones for generation. Calls for a generation older
// than the one in flight are rejected with context.Canceled.
func (b *Backend) FindDuplicates(ctx context.Context, generation uint64) (*dupes.ScanResult, error) {
	ctx, done, err := b.guard.Begin(ctx, generation)
	if err != nil {
		return nil, err
	}
	defer done()

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	progressChan := make(chan Progress, 100)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for p := range progressChan {
			if handler != nil {
				handler(dupes.ProgressEvent{Generation: generation, Progress: toScanProgress(p)})
			}
		}
	}()

	output, err := b.executor.Group(ctx, b.opts, progressChan)
	close(progressChan)
	<-forwardDone
	if err != nil {
		return nil, errors.Wrap(err, "fclones group")
	}

	groups := b.toGroups(output.Groups)
	if !b.guard.Commit(generation, func() { b.publish(groups) }) {
		return nil, context.Canceled
	}

	stats := dupes.ComputeStats(groups)
	reported := output.Header.Stats
	if reported.MissingFileCount > 0 {
		log.Warn().Int64("missing", reported.MissingFileCount).Msg("fclones reported missing files")
	}
	if int64(stats.TotalGroups) != reported.GroupCount || stats.WastedSpace != reported.RedundantFileSize {
		// files changed between fclones hashing them and our stat pass
		log.Debug().
			Int64("reported_groups", reported.GroupCount).
			Int64("reported_redundant", reported.RedundantFileCount).
			Int64("reported_wasted", reported.RedundantFileSize).
			Msg("fclones totals differ from verified groups")
	}
	log.Info().
		Uint64("generation", generation).
		Int("groups", stats.TotalGroups).
		Int64("wasted", stats.WastedSpace).
		Msg("fclones scan finished")

	return &dupes.ScanResult{Groups: groups, Stats: stats}, nil
}

// toGroups stats every reported path. Files that vanished or changed size
// since fclones saw them are dropped, and so are groups left with fewer than
// two members.
func (b *Backend) toGroups(in []Group) []dupes.DuplicateGroup {
	out := make([]dupes.DuplicateGroup, 0, len(in))
	for _, g := range in {
		files := make([]dupes.FileRef, 0, len(g.Files))
		for _, path := range g.Files {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || info.Size() != g.FileLen {
				log.Debug().Str("path", path).Msg("Dropping stale fclones entry")
				continue
			}
			mtime := info.ModTime().UnixMilli()
			files = append(files, dupes.FileRef{
				ID:        fsops.FileID(path),
				Path:      path,
				Size:      info.Size(),
				MtimeMs:   &mtime,
				CreatedAt: fsops.BirthTimeMs(path, info),
			})
		}
		if len(files) < 2 {
			continue
		}
		out = append(out, dupes.DuplicateGroup{
			Hash:  g.FileHash,
			Size:  g.FileLen,
			Files: files,
			Count: len(files),
		})
	}
	return out
}

func (b *Backend) publish(groups []dupes.DuplicateGroup) {
	idx := b.remover.Index
	idx.Reset(b.opts.Paths)
	for _, g := range groups {
		for _, f := range g.Files {
			idx.Add(f.Path)
		}
	}
}

func toScanProgress(p Progress) dupes.ScanProgress {
	phase := dupes.PhaseAnalyzing
	if p.Phase == "hashing" {
		phase = dupes.PhaseHashing
	}
	return dupes.ScanProgress{Phase: phase, Current: p.Current, Total: p.Total}
}
