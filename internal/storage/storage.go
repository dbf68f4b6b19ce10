// Package storage archives completed forecast runs in SQLite.
//
// The archive is write-mostly: runs are stored after they finish and read
// back only for listing and inspection. The forecasting pipeline never reads
// from it, so every request is computed from its own input. The oldest runs
// are rotated out once the archive holds more than maxRuns entries.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/attritioncast/internal/models"
)

// ErrNotFound is returned when a run ID is not in the archive.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT    NOT NULL,
	horizon      INTEGER NOT NULL,
	model        TEXT    NOT NULL,
	categories   TEXT    NOT NULL,
	warnings     TEXT    NOT NULL,
	row_count    INTEGER NOT NULL,
	observations INTEGER NOT NULL,
	payload      BLOB,
	duration_ms  INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Storage is a SQLite-backed run archive. It is safe for concurrent use.
type Storage struct {
	db      *sql.DB
	mu      sync.Mutex
	maxRuns int
}

// New opens (creating if needed) the archive at dbPath. An empty dbPath uses
// a file under the OS temp directory; ":memory:" keeps everything in memory.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "attritioncast", "runs.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	pragmas := []string{`PRAGMA busy_timeout = 5000`}
	if dbPath != ":memory:" {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL`)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, maxRuns: maxRuns}, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and rotates out the oldest runs beyond maxRuns.
func (s *Storage) SaveRun(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	categories, err := json.Marshal(nonNil(run.Categories))
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	warnings, err := json.Marshal(nonNil(run.Warnings))
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`INSERT INTO runs
		(id, mode, horizon, model, categories, warnings, row_count, observations, payload, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Horizon, run.Model, string(categories), string(warnings),
		run.RowCount, run.Observations, run.Payload, run.DurationMS, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return s.rotateLocked()
}

// GetRun returns the run with id, including its payload.
func (s *Storage) GetRun(id string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT id, mode, horizon, model, categories, warnings, row_count,
		observations, payload, duration_ms, created_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first, without payloads.
// A limit of zero or less returns every run.
func (s *Storage) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, mode, horizon, model, categories, warnings, row_count,
		observations, NULL, duration_ms, created_at FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RotateRuns deletes the oldest runs beyond maxRuns. A maxRuns of zero or
// less disables rotation.
func (s *Storage) RotateRuns() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

func (s *Storage) rotateLocked() error {
	if s.maxRuns <= 0 {
		return nil
	}
	_, err := s.db.Exec(`DELETE FROM runs WHERE id NOT IN (
		SELECT id FROM runs ORDER BY created_at DESC, id LIMIT ?)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner, withPayload bool) (*models.Run, error) {
	var (
		run        models.Run
		categories string
		warnings   string
		payload    []byte
		createdAt  int64
	)
	err := sc.Scan(&run.ID, &run.Mode, &run.Horizon, &run.Model, &categories, &warnings,
		&run.RowCount, &run.Observations, &payload, &run.DurationMS, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &run.Categories); err != nil {
		return nil, fmt.Errorf("run %s: corrupt categories: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("run %s: corrupt warnings: %w", run.ID, err)
	}
	if withPayload {
		run.Payload = payload
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
