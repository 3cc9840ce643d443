// Package history persists finished dashboard sessions in SQLite so the
// record survives daemon restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/carpit680/openbot-go/internal/daemon/session"
	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

const defaultLimit = 50

// Entry is one recorded session.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	OutputTail string    `json:"output_tail"`
}

// Store is the session history database. Safe for concurrent use; the
// single connection serializes writers.
type Store struct {
	log logging.Logger
	db  *sql.DB
}

// Open initializes the SQLite database at path, creating the schema and
// parent directory as needed.
func Open(log logging.Logger, path string) (*Store, error) {
	if log == nil {
		log = logging.New(nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn(context.Background(), "history pragma failed",
				"pragma", pragma, "error", err)
		}
	}

	s := &Store{log: log, db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		output_tail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_kind ON sessions(kind);
	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one finished session.
func (s *Store) Record(ctx context.Context, res session.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, kind, target, status, exit_code, started_at, ended_at, output_tail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Kind, res.Target, string(res.Status), res.ExitCode,
		res.StartedAt.UTC().Format(time.RFC3339Nano),
		res.EndedAt.UTC().Format(time.RFC3339Nano),
		strings.Join(res.Tail, "\n"),
	)
	if err != nil {
		return fmt.Errorf("history: record session: %w", err)
	}
	return nil
}

// Recent returns the most recently finished sessions, newest first.
// limit <= 0 selects the default page size.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, "", limit)
}

// ByKind returns the most recently finished sessions of one kind,
// newest first.
func (s *Store) ByKind(ctx context.Context, kind string, limit int) ([]Entry, error) {
	return s.query(ctx, kind, limit)
}

func (s *Store) query(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	q := `SELECT id, session_id, kind, target, status, exit_code, started_at, ended_at, output_tail
		FROM sessions`
	args := []any{}
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY ended_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query sessions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var started, ended string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Target, &e.Status,
			&e.ExitCode, &started, &ended, &e.OutputTail); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		e.StartedAt = parseTime(started)
		e.EndedAt = parseTime(ended)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate sessions: %w", err)
	}
	return entries, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Recorder adapts the store to the runner's result callback. Insert
// failures are logged, never surfaced to the session.
func (s *Store) Recorder() func(session.Result) {
	return func(res session.Result) {
		if err := s.Record(context.Background(), res); err != nil {
			s.log.Error(context.Background(), "failed to record session history",
				"session_id", res.ID, "error", err)
		}
	}
}
