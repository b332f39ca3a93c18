package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zackproser/portfolio-sub002/manifest"

	_ "modernc.org/sqlite"
)

const manifestSQLiteSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	slug TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	source BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_manifests_category
ON manifests(category);`

// SQLiteConfig configures the SQLite manifest store.
type SQLiteConfig struct {
	DSN string
}

// SQLite persists manifest sources in SQLite.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) a SQLite-backed manifest store.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("manifest store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("manifest sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(manifestSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest sqlite store create schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) List(ctx context.Context, category manifest.Category) ([]string, error) {
	query := `SELECT slug FROM manifests ORDER BY slug ASC`
	var args []any
	if category != "" {
		query = `SELECT slug FROM manifests WHERE category = ? OR category = '' ORDER BY slug ASC`
		args = append(args, string(category))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest sqlite store list: %w", err)
	}
	defer rows.Close()

	slugs := []string{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("manifest sqlite store list scan: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest sqlite store list rows: %w", err)
	}
	return slugs, nil
}

func (s *SQLite) Read(ctx context.Context, slug string) ([]byte, error) {
	var source []byte
	err := s.db.QueryRowContext(ctx, `SELECT source FROM manifests WHERE slug = ?`, slug).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest sqlite store read %q: %w", slug, err)
	}
	return source, nil
}

// Put inserts or replaces the source stored under slug.
func (s *SQLite) Put(ctx context.Context, slug string, source []byte) error {
	if err := checkSlug(slug); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO manifests (slug, category, source, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET
	category = excluded.category,
	source = excluded.source,
	updated_at = excluded.updated_at`,
		slug, string(PeekCategory(source)), source, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("manifest sqlite store put %q: %w", slug, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manifests WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("manifest sqlite store delete %q: %w", slug, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	return nil
}

// UpdatedAt reports when slug was last written.
func (s *SQLite) UpdatedAt(ctx context.Context, slug string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM manifests WHERE slug = ?`, slug).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("manifest sqlite store updated_at %q: %w", slug, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("manifest sqlite store parse updated_at %q: %w", raw, err)
	}
	return t, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
