package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const scanRunColumns = `id, run_uuid, triggered_by, backend, generation, paths, status, started_at,
	completed_at, duplicate_groups, duplicate_files, wasted_bytes, error_message`

const actionColumns = `id, scan_run_id, action_type, strategy, files_requested, files_deleted,
	files_failed, bytes_saved, started_at, completed_at, status, error_message`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// ScanRun queries

// CreateScanRun records the start of a scan
func (db *DB) CreateScanRun(runID string, trigger ScanTrigger, backend string, generation uint64, paths []string) (*ScanRun, error) {
	pathsJSON, _ := json.Marshal(paths)

	result, err := db.Exec(`
		INSERT INTO scan_runs (run_uuid, triggered_by, backend, generation, paths, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, trigger, backend, int64(generation), string(pathsJSON), ScanRunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id)
	return scanScanRun(row)
}

// GetScanRunByRunID retrieves a scan run by its UUID
func (db *DB) GetScanRunByRunID(runID string) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE run_uuid = ?`, runID)
	return scanScanRun(row)
}

// GetLatestScanRun returns the most recently started scan run
func (db *DB) GetLatestScanRun() (*ScanRun, error) {
	row := db.QueryRow(`SELECT ` + scanRunColumns + ` FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	return scanScanRun(row)
}

// ListScanRuns returns scan runs with pagination, newest first
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`SELECT `+scanRunColumns+`
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountScanRuns returns the total number of recorded scans
func (db *DB) CountScanRuns() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM scan_runs").Scan(&count)
	return count, err
}

// CompleteScanRun marks a scan run finished with its final stats
func (db *DB) CompleteScanRun(id int64, status ScanRunStatus, groups, files int, wasted int64, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, duplicate_groups = ?,
			duplicate_files = ?, wasted_bytes = ?, error_message = ?
		WHERE id = ?`,
		status, time.Now().UTC(), groups, files, wasted, errorMsg, id,
	)
	return err
}

// FailInterruptedRuns marks runs left running by a previous process as failed
func (db *DB) FailInterruptedRuns() (int64, error) {
	msg := "interrupted by shutdown"
	result, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE status = ?`,
		ScanRunStatusFailed, time.Now().UTC(), msg, ScanRunStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var generation int64
	var pathsJSON string
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &r.RunID, &r.Trigger, &r.Backend, &generation, &pathsJSON, &r.Status,
		&r.StartedAt, &completedAt, &r.DuplicateGroups, &r.DuplicateFiles, &r.WastedBytes, &errorMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Generation = uint64(generation)
	json.Unmarshal([]byte(pathsJSON), &r.Paths)
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// Action queries

// CreateAction creates a new action record
func (db *DB) CreateAction(a *Action) (*Action, error) {
	result, err := db.Exec(`
		INSERT INTO actions (scan_run_id, action_type, strategy, files_requested, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ScanRunID, a.ActionType, a.Strategy, a.FilesRequested, time.Now().UTC(), ActionStatusRunning,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetAction(id)
}

// GetAction retrieves an action by ID
func (db *DB) GetAction(id int64) (*Action, error) {
	row := db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanAction(row)
}

// ListActions returns actions with pagination, newest first
func (db *DB) ListActions(limit, offset int) ([]*Action, error) {
	rows, err := db.Query(`SELECT `+actionColumns+`
		FROM actions ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CompleteAction records the outcome of a deletion batch
func (db *DB) CompleteAction(id int64, deleted, failed int, bytesSaved int64, status ActionStatus, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE actions SET
			files_deleted = ?, files_failed = ?, bytes_saved = ?,
			completed_at = ?, status = ?, error_message = ?
		WHERE id = ?`,
		deleted, failed, bytesSaved, time.Now().UTC(), status, errorMsg, id,
	)
	return err
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var scanRunID sql.NullInt64
	var strategy, errorMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&a.ID, &scanRunID, &a.ActionType, &strategy, &a.FilesRequested, &a.FilesDeleted,
		&a.FilesFailed, &a.BytesSaved, &a.StartedAt, &completedAt, &a.Status, &errorMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if scanRunID.Valid {
		a.ScanRunID = &scanRunID.Int64
	}
	if strategy.Valid {
		a.Strategy = &strategy.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		a.ErrorMessage = &errorMsg.String
	}

	return &a, nil
}

// Settings queries

// GetSetting returns a setting value, or def when unset
func (db *DB) GetSetting(key, def string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting upserts a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetRetentionDays returns the stored retention period
func (db *DB) GetRetentionDays() (int, error) {
	value, err := db.GetSetting("retention_days", "30")
	if err != nil {
		return 0, err
	}
	days, err := strconv.Atoi(value)
	if err != nil {
		return 30, nil
	}
	return days, nil
}

// Stats queries

// GetSummary returns aggregate history statistics
func (db *DB) GetSummary() (*Summary, error) {
	var s Summary

	if err := db.QueryRow("SELECT COUNT(*) FROM scan_runs").Scan(&s.TotalScans); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.QueryRow("SELECT COUNT(*) FROM scan_runs WHERE started_at > ?", cutoff).Scan(&s.ScansLast24h); err != nil {
		return nil, err
	}

	row := db.QueryRow(`
		SELECT COALESCE(SUM(files_deleted), 0), COALESCE(SUM(bytes_saved), 0)
		FROM actions WHERE status IN (?, ?)`, ActionStatusCompleted, ActionStatusPartial)
	if err := row.Scan(&s.TotalFilesDeleted, &s.TotalBytesSaved); err != nil {
		return nil, err
	}

	return &s, nil
}

// CleanupOldData removes finished history older than the retention period
func (db *DB) CleanupOldData(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	actions, err := db.Exec("DELETE FROM actions WHERE completed_at < ? AND status != ?", cutoff, ActionStatusRunning)
	if err != nil {
		return 0, err
	}

	runs, err := db.Exec("DELETE FROM scan_runs WHERE completed_at < ? AND status != ?", cutoff, ScanRunStatusRunning)
	if err != nil {
		return 0, err
	}

	a, _ := actions.RowsAffected()
	r, _ := runs.RowsAffected()
	return a + r, nil
}
