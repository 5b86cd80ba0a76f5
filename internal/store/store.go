// Package store provides a SQLite-backed history of generated answers.
// Every answered question is persisted so operators can review what the
// service produced after the fact, including which answers were degraded
// fallbacks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one answered question.
type Record struct {
	// Document identifies the source document (URL or label).
	Document string
	// Question is the question as asked.
	Question string
	// Answer is the generated answer text.
	Answer string
	// Degraded reports that Answer is a fallback, not a model answer.
	Degraded bool
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// AnswerStore persists and retrieves answer history. Implementations must
// be safe for concurrent use.
type AnswerStore interface {
	// Append persists a single answered question.
	Append(ctx context.Context, rec Record) error
	// Recent returns the most recent n records for the document, ordered
	// oldest-first. If fewer than n records exist, all are returned.
	Recent(ctx context.Context, document string, n int) ([]Record, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is an AnswerStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the answer history database.
// It resolves to ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS answers (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    document     TEXT    NOT NULL,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    degraded     INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_answers_document_created
    ON answers (document, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single answered question.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	const q = `INSERT INTO answers (document, question, answer, degraded, created_at) VALUES (?, ?, ?, ?, ?)`
	degraded := 0
	if rec.Degraded {
		degraded = 1
	}
	if _, err := s.db.ExecContext(ctx, q, rec.Document, rec.Question, rec.Answer, degraded, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records for the document, ordered
// oldest-first. Uses a subquery to select the tail then re-order.
func (s *SQLiteStore) Recent(ctx context.Context, document string, n int) ([]Record, error) {
	const q = `
SELECT question, answer, degraded, created_at FROM (
    SELECT id, question, answer, degraded, created_at
    FROM   answers
    WHERE  document = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, document, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var ts int64
		var degraded int
		if err := rows.Scan(&r.Question, &r.Answer, &degraded, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.Document = document
		r.Degraded = degraded != 0
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
