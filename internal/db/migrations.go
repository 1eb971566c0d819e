package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; never edit one that has shipped.
var migrations = []migration{
	{1, migration001},
	{2, migration002},
}

// Migrate brings the schema up to the latest version
func (db *DB) Migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		log.Debug().Int("version", m.version).Msg("applied migration")
	}
	return nil
}

// apply runs one migration and records it in a single transaction
func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}

const migration001 = `
-- One row per duplicate search
CREATE TABLE scan_runs (
    id INTEGER PRIMARY KEY,
    run_uuid TEXT UNIQUE NOT NULL,
    triggered_by TEXT NOT NULL DEFAULT 'manual',
    backend TEXT NOT NULL,
    generation INTEGER NOT NULL DEFAULT 0,
    paths TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'running',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    duplicate_groups INTEGER DEFAULT 0,
    duplicate_files INTEGER DEFAULT 0,
    wasted_bytes INTEGER DEFAULT 0,
    error_message TEXT
);

CREATE INDEX idx_scan_runs_status ON scan_runs(status);
CREATE INDEX idx_scan_runs_started_at ON scan_runs(started_at);

-- Deletion batches (audit log)
CREATE TABLE actions (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER REFERENCES scan_runs(id) ON DELETE SET NULL,
    action_type TEXT NOT NULL,
    strategy TEXT,
    files_requested INTEGER DEFAULT 0,
    files_deleted INTEGER DEFAULT 0,
    files_failed INTEGER DEFAULT 0,
    bytes_saved INTEGER DEFAULT 0,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    status TEXT NOT NULL DEFAULT 'running',
    error_message TEXT
);

CREATE INDEX idx_actions_scan_run_id ON actions(scan_run_id);
CREATE INDEX idx_actions_started_at ON actions(started_at);
`

const migration002 = `
-- App settings (key-value store)
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT INTO settings (key, value) VALUES ('retention_days', '30');
`
