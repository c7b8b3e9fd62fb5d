package store

import "fmt"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// Meta flags (bootstrap bookkeeping)
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Archived email records. Timestamps are stored as RFC 3339 UTC
		// strings; SQLite DATE() cannot parse Go's default time format.
		`CREATE TABLE IF NOT EXISTS archives (
			id           TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			broker       TEXT NOT NULL DEFAULT '',
			sender_name  TEXT NOT NULL DEFAULT '',
			sender_email TEXT NOT NULL DEFAULT '',
			subject      TEXT NOT NULL DEFAULT '',
			snippet      TEXT NOT NULL DEFAULT '',
			body_preview TEXT NOT NULL DEFAULT '',
			date_header  TEXT NOT NULL DEFAULT '',
			ingested_at  TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,

		// Extraction runs
		`CREATE TABLE IF NOT EXISTS runs (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			status              TEXT NOT NULL,
			archive_ids         TEXT NOT NULL DEFAULT '[]',
			broker_filter       TEXT NOT NULL DEFAULT '',
			include_extracted   INTEGER NOT NULL DEFAULT 0,
			requested_limit     INTEGER NOT NULL DEFAULT 0,
			trigger_source      TEXT NOT NULL DEFAULT '',
			candidate_archives  INTEGER NOT NULL DEFAULT 0,
			processed_archives  INTEGER NOT NULL DEFAULT 0,
			extracted_reports   INTEGER NOT NULL DEFAULT 0,
			skipped_archives    INTEGER NOT NULL DEFAULT 0,
			failed_archives     INTEGER NOT NULL DEFAULT 0,
			duplicate_reports   INTEGER NOT NULL DEFAULT 0,
			failure_samples     TEXT NOT NULL DEFAULT '[]',
			error               TEXT NOT NULL DEFAULT '',
			abort_requested_at  TEXT,
			abort_reason        TEXT NOT NULL DEFAULT '',
			abort_completed_at  TEXT,
			created_at          TEXT NOT NULL,
			started_at          TEXT,
			completed_at        TEXT,
			updated_at          TEXT NOT NULL
		)`,

		// Extracted reports
		`CREATE TABLE IF NOT EXISTS reports (
			id             TEXT PRIMARY KEY,
			run_id         TEXT NOT NULL,
			archive_id     TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			broker         TEXT NOT NULL DEFAULT '',
			company        TEXT NOT NULL DEFAULT '',
			company_raw    TEXT NOT NULL DEFAULT '',
			report_type    TEXT NOT NULL DEFAULT '',
			title          TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT '',
			key_points     TEXT NOT NULL DEFAULT '[]',
			published_at   TEXT,
			confidence     REAL NOT NULL DEFAULT 0,
			duplicate_key  TEXT NOT NULL DEFAULT '',
			duplicate_of   TEXT NOT NULL DEFAULT '',
			dedupe_method  TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,

		// Query-path indexes
		`CREATE INDEX IF NOT EXISTS idx_archives_user_ingested ON archives(user_id, ingested_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user_created ON runs(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_archive ON reports(user_id, archive_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_key ON reports(user_id, duplicate_key)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_published ON reports(user_id, published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_company ON reports(user_id, broker, company)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap DDL failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	// The meta table may not exist yet on first open.
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return false, nil // not set
	}
	return value == "1", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, '1')`, key)
	return err
}
