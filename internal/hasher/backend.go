// Package hasher is the built-in duplicate finder: it walks the scan roots,
// buckets files by size, narrows each bucket with an xxHash prefix digest and
// confirms duplicates with a full BLAKE2b-256 digest.
package hasher

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/mediadupes/internal/dupes"
	"github.com/lyallcooper/mediadupes/internal/fsops"
)

// DefaultPrefixSize is how many leading bytes the pre-filter reads.
const DefaultPrefixSize = 64 * 1024

const progressInterval = 100 * time.Millisecond

// Options configures a native scan.
type Options struct {
	Roots      []string
	Filter     Filter
	Workers    int
	PrefixSize int64
}

// Backend implements dupes.Backend on the local filesystem.
type Backend struct {
	opts    Options
	remover *fsops.Remover

	guard   dupes.ScanGuard
	mu      sync.Mutex
	handler func(dupes.ProgressEvent)
}

// New creates a native backend. Deletions go through remover, whose index is
// rebuilt by every successful scan.
func New(opts Options, remover *fsops.Remover) *Backend {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.PrefixSize <= 0 {
		opts.PrefixSize = DefaultPrefixSize
	}
	return &Backend{opts: opts, remover: remover}
}

func (b *Backend) SetProgressHandler(fn func(dupes.ProgressEvent)) {
	b.mu.Lock()
	b.handler = fn
	b.mu.Unlock()
}

// CancelDuplicateSearch aborts the scan in flight, if any.
func (b *Backend) CancelDuplicateSearch() {
	b.guard.Cancel()
}

func (b *Backend) DeleteDuplicateFiles(ctx context.Context, ids []string) ([]dupes.DeleteResult, error) {
	return b.remover.DeleteBatch(ctx, ids)
}

// FindDuplicates runs one full scan. A newer generation supersedes an older
// one; a call for an older generation returns context.Canceled at once.
func (b *Backend) FindDuplicates(ctx context.Context, generation uint64) (*dupes.ScanResult, error) {
	ctx, done, err := b.guard.Begin(ctx, generation)
	if err != nil {
		log.Debug().Uint64("generation", generation).Msg("Ignoring superseded scan request")
		return nil, err
	}
	defer done()

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	rep := &reporter{generation: generation, handler: handler}
	start := time.Now()

	rep.report(dupes.PhaseAnalyzing, 0, 0, "", true)
	var walked int64
	files, err := walkRoots(ctx, b.opts.Roots, b.opts.Filter, func(path string) {
		walked++
		rep.report(dupes.PhaseAnalyzing, walked, 0, path, false)
	})
	if err != nil {
		return nil, err
	}

	buckets := bucketBySize(files)
	prefixed, err := b.prefixPass(ctx, rep, buckets)
	if err != nil {
		return nil, err
	}

	groups, err := b.fullPass(ctx, rep, prefixed)
	if err != nil {
		return nil, err
	}

	if !b.guard.Commit(generation, func() { b.publish(groups) }) {
		return nil, context.Canceled
	}
	rep.report(dupes.PhaseComplete, 1, 1, "", true)

	stats := dupes.ComputeStats(groups)
	log.Info().
		Uint64("generation", generation).
		Int("files", len(files)).
		Int("groups", stats.TotalGroups).
		Int64("wasted", stats.WastedSpace).
		Dur("took", time.Since(start)).
		Msg("Native scan finished")

	return &dupes.ScanResult{Groups: groups, Stats: stats}, nil
}

// bucketBySize keeps only sizes shared by at least two files.
func bucketBySize(files []candidate) [][]candidate {
	bySize := make(map[int64][]candidate)
	for _, f := range files {
		bySize[f.size] = append(bySize[f.size], f)
	}
	var buckets [][]candidate
	for _, bucket := range bySize {
		if len(bucket) > 1 {
			buckets = append(buckets, bucket)
		}
	}
	return buckets
}

func (b *Backend) prefixPass(ctx context.Context, rep *reporter, buckets [][]candidate) ([][]candidate, error) {
	type key struct {
		bucket int
		digest uint64
	}

	var total int64
	for _, bucket := range buckets {
		total += int64(len(bucket))
	}

	var (
		mu   sync.Mutex
		done int64
		sets = make(map[key][]candidate)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, bucket := range buckets {
		for _, f := range bucket {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sum, err := prefixDigest(f.path, b.opts.PrefixSize)

				mu.Lock()
				defer mu.Unlock()
				done++
				rep.report(dupes.PhaseAnalyzing, done, total, f.path, false)
				if err != nil {
					log.Warn().Err(err).Str("path", f.path).Msg("Skipping file")
					return nil
				}
				k := key{bucket: i, digest: sum}
				sets[k] = append(sets[k], f)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "prefix pass")
	}

	var out [][]candidate
	for _, set := range sets {
		if len(set) > 1 {
			out = append(out, set)
		}
	}
	return out, nil
}

func (b *Backend) fullPass(ctx context.Context, rep *reporter, sets [][]candidate) ([]dupes.DuplicateGroup, error) {
	type key struct {
		size   int64
		digest string
	}

	var total int64
	for _, set := range sets {
		total += int64(len(set))
	}
	rep.report(dupes.PhaseHashing, 0, total, "", true)

	var (
		mu      sync.Mutex
		done    int64
		matches = make(map[key][]candidate)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for _, set := range sets {
		for _, f := range set {
			g.Go(func() error {
				digest, err := fullDigest(f.path, gctx.Err)
				if gctx.Err() != nil {
					return gctx.Err()
				}

				mu.Lock()
				defer mu.Unlock()
				done++
				rep.report(dupes.PhaseHashing, done, total, f.path, false)
				if err != nil {
					log.Warn().Err(err).Str("path", f.path).Msg("Skipping file")
					return nil
				}
				k := key{size: f.size, digest: digest}
				matches[k] = append(matches[k], f)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "full pass")
	}

	groups := make([]dupes.DuplicateGroup, 0, len(matches))
	for k, members := range matches {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].path < members[j].path })
		files := make([]dupes.FileRef, 0, len(members))
		for _, m := range members {
			mtime := m.mtimeMs
			files = append(files, dupes.FileRef{
				ID:        fsops.FileID(m.path),
				Path:      m.path,
				Size:      m.size,
				MtimeMs:   &mtime,
				CreatedAt: m.createdAt,
			})
		}
		groups = append(groups, dupes.DuplicateGroup{
			Hash:  k.digest,
			Size:  k.size,
			Files: files,
			Count: len(files),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		wi, wj := groups[i].Wasted(), groups[j].Wasted()
		if wi != wj {
			return wi > wj
		}
		return groups[i].Hash < groups[j].Hash
	})
	return groups, nil
}

// publish rebuilds the delete index from the groups of a completed scan.
func (b *Backend) publish(groups []dupes.DuplicateGroup) {
	idx := b.remover.Index
	idx.Reset(b.opts.Roots)
	for _, g := range groups {
		for _, f := range g.Files {
			idx.Add(f.Path)
		}
	}
}

// reporter throttles progress events for one scan.
type reporter struct {
	generation uint64
	handler    func(dupes.ProgressEvent)
	last       time.Time
}

func (r *reporter) report(phase dupes.Phase, current, total int64, file string, force bool) {
	if r.handler == nil {
		return
	}
	now := time.Now()
	if !force && (total == 0 || current < total) && now.Sub(r.last) < progressInterval {
		return
	}
	r.last = now
	r.handler(dupes.ProgressEvent{
		Generation: r.generation,
		Progress: dupes.ScanProgress{
			Phase:       phase,
			Current:     current,
			Total:       total,
			CurrentFile: file,
		},
	})
}
