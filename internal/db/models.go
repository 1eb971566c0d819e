package db

import (
	"time"
)

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning    ScanRunStatus = "running"
	ScanRunStatusCompleted  ScanRunStatus = "completed"
	ScanRunStatusFailed     ScanRunStatus = "failed"
	ScanRunStatusCancelled  ScanRunStatus = "cancelled"
	ScanRunStatusSuperseded ScanRunStatus = "superseded"
)

// ScanTrigger records what started a scan
type ScanTrigger string

const (
	TriggerManual    ScanTrigger = "manual"
	TriggerScheduled ScanTrigger = "scheduled"
	TriggerCLI       ScanTrigger = "cli"
)

// ScanRun represents a single duplicate search
type ScanRun struct {
	ID              int64         `json:"id"`
	RunID           string        `json:"runId"`
	Trigger         ScanTrigger   `json:"trigger"`
	Backend         string        `json:"backend"`
	Generation      uint64        `json:"generation"`
	Paths           []string      `json:"paths"`
	Status          ScanRunStatus `json:"status"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	DuplicateGroups int64         `json:"duplicateGroups"`
	DuplicateFiles  int64         `json:"duplicateFiles"`
	WastedBytes     int64         `json:"wastedBytes"`
	ErrorMessage    *string       `json:"errorMessage,omitempty"`
}

// Duration returns how long the run took, or has been running
func (r *ScanRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// ActionStatus represents the status of an action
type ActionStatus string

const (
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusPartial   ActionStatus = "partial"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionType represents the kind of resolution applied
type ActionType string

const (
	ActionTypeDelete ActionType = "delete"
)

// Action represents one deletion batch
type Action struct {
	ID             int64        `json:"id"`
	ScanRunID      *int64       `json:"scanRunId,omitempty"`
	ActionType     ActionType   `json:"actionType"`
	Strategy       *string      `json:"strategy,omitempty"`
	FilesRequested int          `json:"filesRequested"`
	FilesDeleted   int          `json:"filesDeleted"`
	FilesFailed    int          `json:"filesFailed"`
	BytesSaved     int64        `json:"bytesSaved"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	Status         ActionStatus `json:"status"`
	ErrorMessage   *string      `json:"errorMessage,omitempty"`
}

// Summary aggregates history for dashboards
type Summary struct {
	TotalScans        int   `json:"totalScans"`
	ScansLast24h      int   `json:"scansLast24h"`
	TotalFilesDeleted int64 `json:"totalFilesDeleted"`
	TotalBytesSaved   int64 `json:"totalBytesSaved"`
}
