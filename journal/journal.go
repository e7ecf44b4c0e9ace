// Package journal keeps a per-workspace SQLite record of repair sessions so
// repeated attempts on the same test can be compared.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("journal is closed")

// StatusError marks a session that aborted before reaching a terminal
// status.
const StatusError = "error"

// DefaultPath returns the journal location inside workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".autofix", "sessions.db")
}

// Entry is one recorded session.
type Entry struct {
	SessionID    string
	TestID       string
	Provider     string
	Model        string
	Status       string
	Iterations   int
	InputTokens  int
	OutputTokens int
	// File and Line are set when the model gave up at a known location.
	File       string
	Line       int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the session took.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Journal is a session store backed by a single SQLite file.
type Journal struct {
	db *sql.DB
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	test_id       TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	status        TEXT NOT NULL,
	iterations    INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	file          TEXT NOT NULL DEFAULT '',
	line          INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_test ON sessions(test_id, started_at)`,
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	stmts := append([]string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}, schema...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing journal: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

// Record stores e, replacing any entry with the same session ID.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return errors.New("journal entry needs a session ID")
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (
			session_id, test_id, provider, model, status, iterations,
			input_tokens, output_tokens, file, line, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.TestID, e.Provider, e.Model, e.Status, e.Iterations,
		e.InputTokens, e.OutputTokens, e.File, e.Line, e.Error,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording session %s: %w", e.SessionID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-empty testID
// restricts the result to that test. limit <= 0 means no limit.
func (j *Journal) List(ctx context.Context, testID string, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT session_id, test_id, provider, model, status, iterations,
		input_tokens, output_tokens, file, line, error, started_at, finished_at
		FROM sessions`
	var args []any
	if testID != "" {
		query += " WHERE test_id = ?"
		args = append(args, testID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
		)
		if err := rows.Scan(&e.SessionID, &e.TestID, &e.Provider, &e.Model, &e.Status, &e.Iterations,
			&e.InputTokens, &e.OutputTokens, &e.File, &e.Line, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
