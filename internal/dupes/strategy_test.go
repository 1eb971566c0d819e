package dupes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeeper(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		files    []FileRef
		want     string
	}{
		{
			name:     "newest by mtime",
			strategy: StrategyNewest,
			files: []FileRef{
				file("a", "/a", 1, i64(10), nil),
				file("b", "/b", 1, i64(30), nil),
				file("c", "/c", 1, i64(20), nil),
			},
			want: "b",
		},
		{
			name:     "newest falls back to createdAt",
			strategy: StrategyNewest,
			files: []FileRef{
				file("a", "/a", 1, i64(10), i64(1)),
				file("b", "/b", 1, i64(10), i64(2)),
			},
			want: "b",
		},
		{
			name:     "newest prefers shorter path on full tie",
			strategy: StrategyNewest,
			files: []FileRef{
				file("a", "/long/path", 1, i64(10), i64(1)),
				file("b", "/short", 1, i64(10), i64(1)),
			},
			want: "b",
		},
		{
			name:     "newest treats missing mtime as zero",
			strategy: StrategyNewest,
			files: []FileRef{
				file("a", "/a", 1, nil, i64(99)),
				file("b", "/b", 1, i64(1), nil),
			},
			want: "b",
		},
		{
			name:     "oldest by mtime",
			strategy: StrategyOldest,
			files: []FileRef{
				file("a", "/a", 1, i64(30), nil),
				file("b", "/b", 1, i64(10), nil),
			},
			want: "b",
		},
		{
			name:     "oldest never picks a file without mtime",
			strategy: StrategyOldest,
			files: []FileRef{
				file("a", "/a", 1, nil, i64(0)),
				file("b", "/b", 1, i64(1<<50), i64(1<<50)),
			},
			want: "b",
		},
		{
			name:     "oldest falls back to createdAt",
			strategy: StrategyOldest,
			files: []FileRef{
				file("a", "/a", 1, i64(5), i64(9)),
				file("b", "/b", 1, i64(5), i64(3)),
			},
			want: "b",
		},
		{
			name:     "oldest minimizes negative path length on full tie",
			strategy: StrategyOldest,
			files: []FileRef{
				file("a", "/short", 1, i64(5), i64(3)),
				file("b", "/long/path", 1, i64(5), i64(3)),
			},
			want: "b",
		},
		{
			name:     "shortest path",
			strategy: StrategyShortestPath,
			files: []FileRef{
				file("a", "/photos/2020/img.jpg", 1, i64(1), nil),
				file("b", "/img.jpg", 1, i64(0), nil),
			},
			want: "b",
		},
		{
			name:     "shortest path tie prefers more recent",
			strategy: StrategyShortestPath,
			files: []FileRef{
				file("a", "/x/1.jpg", 1, i64(1), nil),
				file("b", "/y/1.jpg", 1, i64(2), nil),
			},
			want: "b",
		},
		{
			name:     "shortest path tie uses createdAt when mtime missing",
			strategy: StrategyShortestPath,
			files: []FileRef{
				file("a", "/x/1.jpg", 1, nil, i64(50)),
				file("b", "/y/1.jpg", 1, i64(40), i64(0)),
			},
			want: "a",
		},
		{
			name:     "full tie keeps first file",
			strategy: StrategyNewest,
			files: []FileRef{
				file("a", "/x", 1, nil, nil),
				file("b", "/y", 1, nil, nil),
			},
			want: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Keeper(tt.files, tt.strategy)
			require.NoError(t, err)
			require.GreaterOrEqual(t, idx, 0)
			assert.Equal(t, tt.want, tt.files[idx].ID)
		})
	}
}

func TestKeeper_Deterministic(t *testing.T) {
	files := []FileRef{
		file("a", "/a/b/c", 1, i64(7), i64(1)),
		file("b", "/a/b", 1, i64(7), i64(1)),
		file("c", "/a", 1, nil, i64(2)),
	}
	for _, s := range Strategies {
		first, err := Keeper(files, s)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Keeper(files, s)
			require.NoError(t, err)
			assert.Equal(t, first, again, "strategy %s", s)
		}
	}
}

func TestKeeper_UnknownStrategy(t *testing.T) {
	_, err := Keeper([]FileRef{file("a", "/a", 1, nil, nil)}, "random")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies {
		got, err := ParseStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStrategy("Newest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestPathLength(t *testing.T) {
	assert.Equal(t, 11, pathLength(`C:\a\xy.jpg`))
	assert.Equal(t, 6, pathLength("/café/"))
	// Astral plane rune is two UTF-16 code units.
	assert.Equal(t, 3, pathLength("/\U0001F600"))
}
