// Package dupes holds the duplicate detection and resolution engine: the scan
// orchestrator, the group store, the selection engine and the deletion
// coordinator. Filesystem work is delegated to a Backend.
package dupes

// FileRef identifies one member of a duplicate group.
type FileRef struct {
	ID        string `json:"id" yaml:"id"`
	Path      string `json:"path" yaml:"path"`
	Size      int64  `json:"size" yaml:"size"`
	MtimeMs   *int64 `json:"mtimeMs" yaml:"mtime_ms,omitempty"`
	CreatedAt *int64 `json:"createdAt" yaml:"created_at,omitempty"`
}

// DuplicateGroup is a set of at least two files sharing size and digest.
type DuplicateGroup struct {
	Hash  string    `json:"hash" yaml:"hash"`
	Size  int64     `json:"size" yaml:"size"`
	Files []FileRef `json:"files" yaml:"files"`
	Count int       `json:"count" yaml:"count"`
}

// Wasted returns the bytes recoverable by keeping a single copy.
func (g DuplicateGroup) Wasted() int64 {
	if g.Count < 2 {
		return 0
	}
	return g.Size * int64(g.Count-1)
}

// Stats aggregates the current groups. TotalFiles counts redundant copies only.
type Stats struct {
	TotalGroups int   `json:"totalGroups" yaml:"total_groups"`
	TotalFiles  int   `json:"totalFiles" yaml:"total_files"`
	WastedSpace int64 `json:"wastedSpace" yaml:"wasted_space"`
}

// Phase is the backend's reported scan phase.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseHashing   Phase = "hashing"
	PhaseComplete  Phase = "complete"
)

// ScanProgress is a point-in-time progress snapshot.
type ScanProgress struct {
	Phase       Phase  `json:"phase"`
	Current     int64  `json:"current"`
	Total       int64  `json:"total"`
	CurrentFile string `json:"currentFile,omitempty"`
}

// ProgressEvent is a progress snapshot tagged with the scan generation it
// was produced under.
type ProgressEvent struct {
	Generation uint64
	Progress   ScanProgress
}

// ScanResult is what a backend returns from a completed scan.
type ScanResult struct {
	Groups []DuplicateGroup `json:"groups"`
	Stats  Stats            `json:"stats"`
}

// DeleteResult reports the outcome of deleting one file id.
type DeleteResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SearchState is the orchestrator's state machine position.
type SearchState string

const (
	StateIdle      SearchState = "idle"
	StateAnalyzing SearchState = "analyzing"
	StateHashing   SearchState = "hashing"
	StateComplete  SearchState = "complete"
	StateCancelled SearchState = "cancelled"
	StateError     SearchState = "error"
)

// Snapshot is a copy of the engine's observable state.
type Snapshot struct {
	State       SearchState      `json:"state"`
	Searching   bool             `json:"searching"`
	Deleting    bool             `json:"deleting"`
	HasSearched bool             `json:"hasSearched"`
	Generation  uint64           `json:"generation"`
	Progress    *ScanProgress    `json:"progress,omitempty"`
	Groups      []DuplicateGroup `json:"groups"`
	Stats       Stats            `json:"stats"`
	Selected    []string         `json:"selected"`
	LastError   string           `json:"lastError,omitempty"`
}
