// Package sqlite is a journal sink backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS calendar_journal (
	entry_id   TEXT PRIMARY KEY,
	idem_key   TEXT NOT NULL UNIQUE,
	op         TEXT NOT NULL,
	event_date TEXT NOT NULL,
	event_id   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	ts_epoch   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calendar_journal_ts_idx ON calendar_journal (ts_epoch);
`

type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" is allowed; the pool is pinned to one connection so
// every query sees the same in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open handle. The caller is responsible for Migrate.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

func (s *DB) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite journal: %w", err)
	}
	return nil
}

func (s *DB) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) Close() error {
	return s.db.Close()
}
