// Package sqlite is a single-file job and chunk store for local runs.
// Similarity search is a brute-force cosine scan over the subject's chunks.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activity_jobs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
	request_data  TEXT NOT NULL,
	result_data   TEXT,
	error_message TEXT,
	created_at    INTEGER NOT NULL,
	completed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_activity_jobs_status ON activity_jobs (status, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	subject      TEXT NOT NULL,
	heading      TEXT NOT NULL,
	grade_level  TEXT NOT NULL,
	content_type TEXT NOT NULL,
	content      TEXT NOT NULL,
	position     INTEGER NOT NULL,
	embedding    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_subject ON chunks (subject, grade_level);
`

// Store holds the database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(dsn string) (*Store, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
