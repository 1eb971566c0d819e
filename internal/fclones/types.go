package fclones

// GroupOutput is the subset of `fclones group --format json` we read.
type GroupOutput struct {
	Header Header  `json:"header"`
	Groups []Group `json:"groups"`
}

// Header carries the totals fclones computed for the run.
type Header struct {
	Version string `json:"version"`
	Stats   Stats  `json:"stats"`
}

// Group is one set of identical files as reported by fclones.
type Group struct {
	FileLen  int64    `json:"file_len"`
	FileHash string   `json:"file_hash"`
	Files    []string `json:"files"`
}

type Stats struct {
	GroupCount         int64 `json:"group_count"`
	RedundantFileCount int64 `json:"redundant_file_count"`
	RedundantFileSize  int64 `json:"redundant_file_size"`
	MissingFileCount   int64 `json:"missing_file_count"`
}

// ScanOptions configures a scan operation
type ScanOptions struct {
	Paths           []string
	MinSize         int64    // Minimum file size in bytes
	MaxSize         *int64   // Maximum file size (nil = no limit)
	IncludePatterns []string // Glob patterns to include
	ExcludePatterns []string // Glob patterns to exclude
	HashFunction    string   // blake3, sha256, etc.
	Threads         int      // 0 = fclones default
}

// Progress represents scan progress parsed from fclones stderr
type Progress struct {
	Phase string // "initializing", "scanning", "grouping", "hashing", "processing"

	// Progress bar info (from lines like "4/6: Grouping by prefix [...] 12027 / 60000")
	PhaseNum     int     // Current phase number (e.g., 4)
	PhaseTotal   int     // Total phases (e.g., 6)
	PhaseName    string  // Phase description (e.g., "Grouping by prefix")
	PhasePercent float64 // Progress within current phase (0-100), -1 when indeterminate
	Current      int64   // Items or bytes done in this phase
	Total        int64   // Items or bytes in this phase, 0 when unknown
}
