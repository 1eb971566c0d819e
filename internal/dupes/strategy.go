package dupes

import (
	"fmt"
	"math"
	"unicode/utf16"
)

// Strategy names a keeper selection rule.
type Strategy string

const (
	StrategyNewest       Strategy = "newest"
	StrategyOldest       Strategy = "oldest"
	StrategyShortestPath Strategy = "shortest_path"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyNewest, StrategyOldest, StrategyShortestPath}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range Strategies {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Keeper returns the index of the file the strategy keeps. Ties not broken
// by the strategy's own key go to the earliest file in order.
func Keeper(files []FileRef, strategy Strategy) (int, error) {
	var better func(a, b FileRef) bool
	switch strategy {
	case StrategyNewest:
		better = newerThan
	case StrategyOldest:
		better = olderThan
	case StrategyShortestPath:
		better = shorterThan
	default:
		return -1, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if len(files) == 0 {
		return -1, nil
	}

	best := 0
	for i := 1; i < len(files); i++ {
		if better(files[i], files[best]) {
			best = i
		}
	}
	return best, nil
}

// newerThan orders by (mtime, createdAt, -pathLength) descending.
func newerThan(a, b FileRef) bool {
	am, bm := valueOr(a.MtimeMs, 0), valueOr(b.MtimeMs, 0)
	if am != bm {
		return am > bm
	}
	ac, bc := valueOr(a.CreatedAt, 0), valueOr(b.CreatedAt, 0)
	if ac != bc {
		return ac > bc
	}
	return pathLength(a.Path) < pathLength(b.Path)
}

// olderThan minimizes the same tuple as newerThan. A missing mtime sorts
// last so an undated file never wins.
func olderThan(a, b FileRef) bool {
	am, bm := valueOr(a.MtimeMs, math.MaxInt64), valueOr(b.MtimeMs, math.MaxInt64)
	if am != bm {
		return am < bm
	}
	ac, bc := valueOr(a.CreatedAt, 0), valueOr(b.CreatedAt, 0)
	if ac != bc {
		return ac < bc
	}
	// Minimizing -pathLength keeps the longer path.
	return pathLength(a.Path) > pathLength(b.Path)
}

func shorterThan(a, b FileRef) bool {
	al, bl := pathLength(a.Path), pathLength(b.Path)
	if al != bl {
		return al < bl
	}
	return recency(a) > recency(b)
}

// recency is mtime, falling back to createdAt, then zero.
func recency(f FileRef) int64 {
	if f.MtimeMs != nil {
		return *f.MtimeMs
	}
	return valueOr(f.CreatedAt, 0)
}

// pathLength counts UTF-16 code units.
func pathLength(p string) int {
	n := 0
	for _, r := range p {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func valueOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}
