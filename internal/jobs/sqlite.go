package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	status      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	result      TEXT,
	error       TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer connection serializes inserts and transitions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}

	return &SQLiteStore{db: db, clock: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, job *Job) (*Job, bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("encoding payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, fingerprint, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		job.ID, job.Fingerprint, string(job.Status), string(payload),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("inserting job: %w", err)
	}

	row := s.db.QueryRowContext(ctx, selectJob+` WHERE fingerprint = ?`, job.Fingerprint)
	stored, err := scanJob(row)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, to Status, result Result, detail string) error {
	if !to.Terminal() {
		return fmt.Errorf("invalid target status %q", to)
	}

	var resultCol, errorCol interface{}
	switch to {
	case StatusCompleted:
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		resultCol = string(raw)
	case StatusError:
		errorCol = detail
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), resultCol, errorCol, formatTime(s.clock()),
		id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrTerminal
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
}

const selectJob = `SELECT id, fingerprint, status, payload, result, error, created_at, updated_at FROM jobs`

func scanJob(row *sql.Row) (*Job, error) {
	var (
		job                  Job
		status, payload      string
		result, detail       sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&job.ID, &job.Fingerprint, &status, &payload, &result, &detail, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Status = Status(status)
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
	}
	job.Error = detail.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
