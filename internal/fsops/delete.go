package fsops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// DefaultDeleteWorkers bounds concurrent removals in one batch.
const DefaultDeleteWorkers = 4

// Remover deletes indexed files, optionally moving them into a trash
// directory instead of unlinking them.
type Remover struct {
	Index    *Index
	TrashDir string
	Workers  int

	// afterDelete observes each result as it is recorded
	afterDelete func(dupes.DeleteResult)
}

// ErrCancelled is the per-file error for ids never attempted because the
// batch context ended first.
const ErrCancelled = "cancelled"

// DeleteBatch removes every id and reports one result per id, in completion
// order. Per-file problems, including ids skipped after ctx ends, are
// reported in the results; files already removed are always reported.
func (r *Remover) DeleteBatch(ctx context.Context, ids []string) ([]dupes.DeleteResult, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultDeleteWorkers
	}

	var (
		mu      sync.Mutex
		results = make([]dupes.DeleteResult, 0, len(ids))
		deleted []string
	)

	var g errgroup.Group
	g.SetLimit(workers)

	for _, id := range ids {
		g.Go(func() error {
			var res dupes.DeleteResult
			if ctx.Err() != nil {
				res = dupes.DeleteResult{ID: id, Error: ErrCancelled}
			} else {
				res = r.deleteOne(id)
			}

			mu.Lock()
			results = append(results, res)
			if res.Success {
				deleted = append(deleted, id)
			}
			mu.Unlock()

			if r.afterDelete != nil {
				r.afterDelete(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.Index.Forget(deleted...)
	if skipped := len(ids) - len(deleted); ctx.Err() != nil && skipped > 0 {
		log.Warn().Err(ctx.Err()).Int("deleted", len(deleted)).Int("not_deleted", skipped).Msg("delete batch interrupted")
	}
	return results, nil
}

func (r *Remover) deleteOne(id string) dupes.DeleteResult {
	path, ok := r.Index.Lookup(id)
	if !ok {
		return dupes.DeleteResult{ID: id, Error: "unknown file id"}
	}

	if err := r.remove(path); err != nil {
		return dupes.DeleteResult{ID: id, Error: err.Error()}
	}
	return dupes.DeleteResult{ID: id, Success: true}
}

func (r *Remover) remove(path string) error {
	if err := validateTarget(path, r.Index.Roots()); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already gone counts as deleted.
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to delete directory: %s", path)
	}

	if r.TrashDir != "" {
		return moveToTrash(path, r.TrashDir)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// validateTarget requires an absolute path strictly inside one of roots.
func validateTarget(target string, roots []string) error {
	if !filepath.IsAbs(target) {
		return fmt.Errorf("refusing non-absolute path: %s", target)
	}
	clean := filepath.Clean(target)
	for _, root := range roots {
		if clean == filepath.Clean(root) {
			return fmt.Errorf("refusing to delete scan root: %s", root)
		}
		rel, err := filepath.Rel(root, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return nil
	}
	return fmt.Errorf("path is outside every scan root: %s", target)
}

func moveToTrash(path, trashDir string) error {
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return errors.Wrap(err, "create trash directory")
	}
	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(path))
	dest := filepath.Join(trashDir, name)
	if err := os.Rename(path, dest); err != nil {
		return errors.Wrapf(err, "move %s to trash", path)
	}
	return nil
}
