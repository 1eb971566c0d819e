package hasher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/fsops"
)

// DefaultMediaExtensions is the extension filter applied when a config does
// not override it.
var DefaultMediaExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".heic", ".heif",
	".raw", ".dng", ".cr2", ".cr3", ".nef", ".arw", ".orf", ".rw2",
	".mp4", ".m4v", ".mov", ".avi", ".mkv", ".wmv", ".webm", ".mts", ".3gp",
	".mp3", ".m4a", ".flac", ".wav", ".aac", ".ogg", ".opus",
}

// Filter decides which walked files become scan candidates.
type Filter struct {
	Include    []string
	Exclude    []string
	Extensions []string
	MinSize    int64
	MaxSize    int64
}

type inodeKey struct {
	dev uint64
	ino uint64
}

type candidate struct {
	path      string
	size      int64
	mtimeMs   int64
	createdAt *int64
}

// walkRoots collects regular files under roots that pass the filter.
// Symlinks are skipped, hardlinks to an already seen inode are skipped, and
// overlapping roots never yield the same path twice.
func walkRoots(ctx context.Context, roots []string, filter Filter, onFile func(string)) ([]candidate, error) {
	exts := normalizeExtensions(filter.Extensions)
	seenPaths := make(map[string]struct{})
	seenInodes := make(map[inodeKey]struct{})
	var files []candidate

	for _, root := range roots {
		root = filepath.Clean(root)
		if _, err := os.Stat(root); err != nil {
			return nil, errors.Wrapf(err, "scan root %s", root)
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				if path == root {
					return err
				}
				log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			if d.IsDir() {
				if path != root && matchesAny(rel, filter.Exclude, true) {
					return fs.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}
			if matchesAny(rel, filter.Exclude, false) {
				return nil
			}
			if len(filter.Include) > 0 && !matchesAny(rel, filter.Include, false) {
				return nil
			}
			if len(exts) > 0 {
				if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
					return nil
				}
			}
			if _, dup := seenPaths[path]; dup {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			size := info.Size()
			if size == 0 || size < filter.MinSize || (filter.MaxSize > 0 && size > filter.MaxSize) {
				return nil
			}

			if key, ok := inodeKeyFromInfo(info); ok {
				if _, dup := seenInodes[key]; dup {
					return nil
				}
				seenInodes[key] = struct{}{}
			}
			seenPaths[path] = struct{}{}

			files = append(files, candidate{
				path:      path,
				size:      size,
				mtimeMs:   info.ModTime().UnixMilli(),
				createdAt: fsops.BirthTimeMs(path, info),
			})
			if onFile != nil {
				onFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", root)
		}
	}

	return files, nil
}

// matchesAny reports whether rel matches one of the glob patterns. Patterns
// ending in "/" only match directory components; patterns containing a
// separator match the whole relative path; anything else matches the base
// name.
func matchesAny(rel string, patterns []string, isDir bool) bool {
	for _, pattern := range patterns {
		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			parts := strings.Split(rel, string(filepath.Separator))
			if !isDir {
				parts = parts[:len(parts)-1]
			}
			for _, part := range parts {
				if matched, _ := filepath.Match(dirPattern, part); matched {
					return true
				}
			}
			continue
		}
		if isDir {
			continue
		}
		if strings.Contains(pattern, "/") {
			if matched, _ := filepath.Match(filepath.FromSlash(pattern), rel); matched {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(rel)); matched {
			return true
		}
	}
	return false
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}
