package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/isdmx/mendbox/healer"
	"github.com/isdmx/mendbox/sandbox"
)

// ErrNotFound is returned when the requested session does not exist
var ErrNotFound = errors.New("session not found")

// Record is the persisted form of a healing session
type Record struct {
	ID          string          `json:"id"`
	EntryPoint  string          `json:"entry_point"`
	Status      healer.State    `json:"status"`
	MaxAttempts int             `json:"max_attempts"`
	Success     bool            `json:"success"`
	FinalFiles  sandbox.FileSet `json:"final_files,omitempty"`
	LastStdout  string          `json:"last_stdout,omitempty"`
	LastStderr  string          `json:"last_stderr,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store persists healing sessions and their attempts in SQLite
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode keeps concurrent readers out of the writer's way
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			entry_point  TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'running',
			max_attempts INTEGER NOT NULL DEFAULT 0,
			success      INTEGER NOT NULL DEFAULT 0,
			final_files  TEXT NOT NULL DEFAULT '{}',
			last_stdout  TEXT NOT NULL DEFAULT '',
			last_stderr  TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS attempts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			exit_code  INTEGER NOT NULL,
			stdout     TEXT NOT NULL DEFAULT '',
			stderr     TEXT NOT NULL DEFAULT '',
			files      TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_session_id
			ON attempts(session_id);
	`)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session record. The record's FinalFiles hold
// the initial file set until FinishSession overwrites them, so a session
// interrupted mid-heal can still be resumed from its starting point.
func (s *Store) CreateSession(rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = healer.StateRunning
	}

	files, err := json.Marshal(rec.FinalFiles)
	if err != nil {
		return fmt.Errorf("encoding initial files: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, entry_point, status, max_attempts, final_files, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntryPoint, string(rec.Status), rec.MaxAttempts, string(files),
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// FinishSession records a healing session's outcome
func (s *Store) FinishSession(id string, state healer.State, maxAttempts int, result healer.Result) error {
	files, err := json.Marshal(result.FinalFiles)
	if err != nil {
		return fmt.Errorf("encoding final files: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE sessions SET
			status = ?, max_attempts = ?, success = ?, final_files = ?,
			last_stdout = ?, last_stderr = ?, updated_at = ?
		 WHERE id = ?`,
		string(state), maxAttempts, result.Success, string(files),
		result.LastStdout, result.LastStderr, time.Now().UTC(), id,
	)
	return err
}

// AddAttempt appends one attempt record to a session
func (s *Store) AddAttempt(sessionID string, attempt healer.Attempt) error {
	files, err := json.Marshal(attempt.Files)
	if err != nil {
		return fmt.Errorf("encoding attempt files: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO attempts (session_id, idx, exit_code, stdout, stderr, files)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, attempt.Index, attempt.Result.ExitCode,
		attempt.Result.Stdout, attempt.Result.Stderr, string(files),
	)
	return err
}

// GetSession retrieves a session by id
func (s *Store) GetSession(id string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, entry_point, status, max_attempts, success, final_files,
		        last_stdout, last_stderr, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// GetAttempts returns a session's attempts in execution order
func (s *Store) GetAttempts(sessionID string) ([]healer.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT idx, exit_code, stdout, stderr, files
		 FROM attempts WHERE session_id = ? ORDER BY idx ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []healer.Attempt
	for rows.Next() {
		var a healer.Attempt
		var files string
		if err := rows.Scan(&a.Index, &a.Result.ExitCode, &a.Result.Stdout, &a.Result.Stderr, &files); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(files), &a.Files); err != nil {
			return nil, fmt.Errorf("decoding attempt files: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListSessions returns the most recent sessions, newest first
func (s *Store) ListSessions(limit int) ([]*Record, error) {
	rows, err := s.db.Query(
		`SELECT id, entry_point, status, max_attempts, success, final_files,
		        last_stdout, last_stderr, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	rec := &Record{}
	var status, files string
	err := row.Scan(
		&rec.ID, &rec.EntryPoint, &status, &rec.MaxAttempts, &rec.Success,
		&files, &rec.LastStdout, &rec.LastStderr, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = healer.State(status)
	if err := json.Unmarshal([]byte(files), &rec.FinalFiles); err != nil {
		return nil, fmt.Errorf("decoding final files: %w", err)
	}
	return rec, nil
}
