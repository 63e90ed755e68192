// Package db opens the stag SQLite database and applies migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
    transfer_id    TEXT PRIMARY KEY,
    filename       TEXT NOT NULL,
    declared_size  INTEGER NOT NULL,
    received_size  INTEGER NOT NULL,
    elapsed_ms     INTEGER NOT NULL,
    bytes_per_sec  REAL NOT NULL,
    completed_at   REAL NOT NULL,
    outcome        TEXT NOT NULL,
    verdict        TEXT NOT NULL DEFAULT 'unanalyzed',
    issue_count    INTEGER NOT NULL DEFAULT 0,
    archive_sha256 TEXT,
    uploaded_at    REAL
);
CREATE INDEX IF NOT EXISTS idx_transfers_completed_at ON transfers(completed_at);
CREATE INDEX IF NOT EXISTS idx_transfers_verdict ON transfers(verdict);
`

// Open opens the DB at path, creates dir if needed, runs migrations.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %v, close failed: %w", err, closeErr)
		}
		return nil, err
	}
	if err := migrate(conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("migrate failed: %v, close failed: %w", err, closeErr)
		}
		return nil, err
	}
	return conn, nil
}

func migrate(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
