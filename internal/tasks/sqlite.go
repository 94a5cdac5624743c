package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists tasks in a SQLite database so status survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath. Tasks left unfinished by a
// previous process are marked failed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(
		`UPDATE tasks SET status = ?, error = ?, finished_at = ? WHERE status IN (?, ?)`,
		StatusFailed, "interrupted by restart", time.Now().UTC(), StatusEnqueued, StatusProcessing,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to recover interrupted tasks: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		details TEXT,
		enqueued_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_enqueued_at ON tasks(enqueued_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Save inserts or updates t.
func (s *SQLiteStore) Save(ctx context.Context, t *Task) error {
	var details []byte
	if t.Details != nil {
		var err error
		if details, err = json.Marshal(t.Details); err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, type, status, error, details, enqueued_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   error = excluded.error,
		   details = excluded.details,
		   started_at = excluded.started_at,
		   finished_at = excluded.finished_at`,
		t.ID, t.Type, string(t.Status), nullString(t.Error), nullString(string(details)),
		t.EnqueuedAt.UTC(), nullTime(t.StartedAt), nullTime(t.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the task with id, or nil when it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, error, details, enqueued_at, started_at, finished_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// List returns up to limit tasks, newest first. limit <= 0 means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status, error, details, enqueued_at, started_at, finished_at
		 FROM tasks ORDER BY enqueued_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t                 Task
		status            string
		errText, details  sql.NullString
		started, finished sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Type, &status, &errText, &details, &t.EnqueuedAt, &started, &finished); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Error = errText.String
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &t.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}
	if started.Valid {
		v := started.Time
		t.StartedAt = &v
	}
	if finished.Valid {
		v := finished.Time
		t.FinishedAt = &v
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
