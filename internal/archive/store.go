// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive persists archive entries, run records, and the daily
// start counters in a single SQLite file.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// ErrNotFound is returned when a requested entry or run does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the archive SQLite database.
type Store struct {
	db        *sql.DB
	path      string
	exportDir string
}

// NewStore opens or creates the archive database at cfg.Path and creates
// the schema if it does not exist. Transactions begin IMMEDIATE so
// read-modify-write updates from concurrent goroutines serialize.
func NewStore(cfg types.ArchiveConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = types.DefaultConfig().Archive.Path
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = filepath.Join(filepath.Dir(path), "export")
	}

	s := &Store{
		db:        db,
		path:      path,
		exportDir: exportDir,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			canonical_id TEXT PRIMARY KEY,
			raw_id TEXT,
			title TEXT NOT NULL DEFAULT '',
			title_key TEXT NOT NULL DEFAULT '',
			venue TEXT,
			authors TEXT,
			pub_date TEXT,
			link TEXT,
			abstract TEXT,
			tags TEXT,
			source TEXT,
			score TEXT,
			total REAL,
			report TEXT,
			summarized INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			embedding_model TEXT,
			first_seen_run_date TEXT NOT NULL,
			stored_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_title_key ON entries(title_key)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_first_seen ON entries(first_seen_run_date)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_date TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			total_count INTEGER NOT NULL DEFAULT 0,
			deep_reads TEXT,
			also_notable TEXT,
			digest TEXT,
			logs TEXT,
			error TEXT,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS run_starts (
			run_date TEXT PRIMARY KEY,
			starts INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
