package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("audit run not found")

const auditSQLiteSchema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	run_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total INTEGER NOT NULL,
	invalid INTEGER NOT NULL,
	report_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_started_at
ON audit_runs(started_at DESC);`

// StoreConfig configures the SQLite audit history.
type StoreConfig struct {
	DSN string
}

// Store keeps audit reports.
type Store interface {
	Save(ctx context.Context, report *Report) error
	List(ctx context.Context, limit int) ([]RunSummary, error)
	Get(ctx context.Context, runID string) (*Report, error)
}

// RunSummary is one row of audit history.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Category   string    `json:"category,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Invalid    int       `json:"invalid"`
}

// SQLiteStore persists audit reports in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the audit history database.
func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("audit store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(auditSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save records report. Saving the same run twice replaces it.
func (s *SQLiteStore) Save(ctx context.Context, report *Report) error {
	if report == nil || report.RunID == "" {
		return errors.New("audit report requires a run id")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("audit sqlite store marshal report: %w", err)
	}
	counts := report.Counts()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_runs (run_id, category, started_at, finished_at, total, invalid, report_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	category = excluded.category,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	total = excluded.total,
	invalid = excluded.invalid,
	report_json = excluded.report_json`,
		report.RunID,
		string(report.Category),
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		counts.Total,
		counts.Invalid(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit sqlite store save %s: %w", report.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT run_id, category, started_at, finished_at, total, invalid
FROM audit_runs ORDER BY started_at DESC, run_id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit sqlite store list: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			run              RunSummary
			started, finished string
		)
		if err := rows.Scan(&run.RunID, &run.Category, &started, &finished, &run.Total, &run.Invalid); err != nil {
			return nil, fmt.Errorf("audit sqlite store list scan: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("audit sqlite store parse started_at %q: %w", started, err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("audit sqlite store parse finished_at %q: %w", finished, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit sqlite store list rows: %w", err)
	}
	return runs, nil
}

// Get returns the full report for runID.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM audit_runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("audit sqlite store get %s: %w", runID, err)
	}
	var report Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("audit sqlite store decode %s: %w", runID, err)
	}
	return &report, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
