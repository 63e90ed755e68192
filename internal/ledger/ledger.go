// Package ledger records the outcome of every finished transfer: sizes,
// throughput, the analyzer's verdict, and where the archived copy lives.
package ledger

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Outcome of a transfer session.
const (
	OutcomeComplete   = "complete"
	OutcomeIncomplete = "incomplete"
)

// Analyzer verdicts.
const (
	VerdictValid      = "valid"
	VerdictCorrupted  = "corrupted"
	VerdictUnanalyzed = "unanalyzed"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Transfer is one ledger row.
type Transfer struct {
	TransferID    string
	Filename      string
	DeclaredSize  int64
	ReceivedSize  int64
	ElapsedMs     int64
	BytesPerSec   float64
	CompletedAt   float64 // unix seconds
	Outcome       string
	Verdict       string
	IssueCount    int
	ArchiveSHA256 string
	UploadedAt    float64 // unix seconds, 0 = never
}

// Insert records a finished transfer and returns its generated id.
func (s *Store) Insert(t Transfer) (string, error) {
	if t.TransferID == "" {
		t.TransferID = uuid.New().String()
	}
	if t.CompletedAt == 0 {
		t.CompletedAt = unixNow()
	}
	if t.Verdict == "" {
		t.Verdict = VerdictUnanalyzed
	}
	var sha interface{}
	if t.ArchiveSHA256 != "" {
		sha = t.ArchiveSHA256
	}
	_, err := s.db.Exec(
		`INSERT INTO transfers (transfer_id, filename, declared_size, received_size,
		    elapsed_ms, bytes_per_sec, completed_at, outcome, verdict, issue_count, archive_sha256)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TransferID, t.Filename, t.DeclaredSize, t.ReceivedSize,
		t.ElapsedMs, t.BytesPerSec, t.CompletedAt, t.Outcome, t.Verdict, t.IssueCount, sha,
	)
	return t.TransferID, err
}

// MarkUploaded stamps the upload time on a transfer.
func (s *Store) MarkUploaded(transferID string) error {
	_, err := s.db.Exec(
		`UPDATE transfers SET uploaded_at = ? WHERE transfer_id = ?`,
		unixNow(), transferID,
	)
	return err
}

// ClearArchive drops the archive reference after the blob is pruned.
func (s *Store) ClearArchive(sha256Hex string) error {
	_, err := s.db.Exec(
		`UPDATE transfers SET archive_sha256 = NULL WHERE archive_sha256 = ?`,
		sha256Hex,
	)
	return err
}

// Recent returns the latest n transfers, newest first.
func (s *Store) Recent(n int) ([]Transfer, error) {
	rows, err := s.db.Query(
		`SELECT transfer_id, filename, declared_size, received_size, elapsed_ms,
		    bytes_per_sec, completed_at, outcome, verdict, issue_count,
		    COALESCE(archive_sha256, ''), COALESCE(uploaded_at, 0)
		 FROM transfers ORDER BY completed_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.TransferID, &t.Filename, &t.DeclaredSize, &t.ReceivedSize,
			&t.ElapsedMs, &t.BytesPerSec, &t.CompletedAt, &t.Outcome, &t.Verdict,
			&t.IssueCount, &t.ArchiveSHA256, &t.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Counts returns totals for the status command.
func (s *Store) Counts() (total, valid, corrupted, incomplete int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*),
		    COALESCE(SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		 FROM transfers`,
		VerdictValid, VerdictCorrupted, OutcomeIncomplete,
	).Scan(&total, &valid, &corrupted, &incomplete)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return total, valid, corrupted, incomplete, nil
}

// ArchivedBefore lists archive hashes whose transfers completed before cutoff.
func (s *Store) ArchivedBefore(cutoff float64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT archive_sha256 FROM transfers
		 WHERE archive_sha256 IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
