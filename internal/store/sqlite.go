package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"imagefetch/internal/logging"

	_ "modernc.org/sqlite"
)

// Status values recorded for an image.
const (
	StatusSaved   = "saved"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
	StatusDeleted = "deleted"
	StatusMissing = "missing"
)

// Run represents a row in the runs table.
type Run struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	OutputDir  string     `json:"output_dir"`
	Count      int        `json:"count"`
	Saved      int        `json:"saved"`
	Failed     int        `json:"failed"`
	Aborted    int        `json:"aborted"`
	Deleted    int        `json:"deleted"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Entry represents a row in the images table.
type Entry struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	Index        int       `json:"index"`
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	Bytes        int64     `json:"bytes"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store wraps an sql.DB and provides typed helpers.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and ensures schema.
func Open(path string) (*Store, error) {
	// Pragmas: busy timeout and WAL for better concurrency.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "open ledger", goerr.V("path", path))
	}
	// Conservative limits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "init ledger schema", goerr.V("path", path))
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    count INTEGER NOT NULL,
    saved INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    aborted INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    idx INTEGER NOT NULL,
    path TEXT,
    status TEXT NOT NULL,
    bytes INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_images_run ON images(run_id);
CREATE INDEX IF NOT EXISTS idx_images_run_path ON images(run_id, path);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrEmptyRunID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, url, output_dir, count) VALUES (?, ?, ?, ?)`,
		run.ID, logging.RedactURL(run.URL), run.OutputDir, run.Count)
	if err != nil {
		return goerr.Wrap(err, "insert run", goerr.V("run_id", run.ID))
	}
	logging.LogLedger("create_run", 0, nil)
	return nil
}

// FinishRun stores the final counters of a run and stamps finished_at.
func (s *Store) FinishRun(ctx context.Context, runID string, saved, failed, aborted, deleted int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET saved = ?, failed = ?, aborted = ?, deleted = ?, finished_at = CURRENT_TIMESTAMP
WHERE id = ?`, saved, failed, aborted, deleted, runID)
	if err != nil {
		return goerr.Wrap(err, "finish run", goerr.V("run_id", runID))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return goerr.Wrap(ErrRunNotFound, "finish run", goerr.V("run_id", runID))
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, url, output_dir, count, saved, failed, aborted, deleted, started_at, finished_at
FROM runs WHERE id = ?`, runID)

	var (
		r        Run
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.URL, &r.OutputDir, &r.Count, &r.Saved, &r.Failed, &r.Aborted, &r.Deleted, &r.StartedAt, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, goerr.Wrap(err, "get run", goerr.V("run_id", runID))
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// RecordImage inserts an image outcome and returns its row ID.
func (s *Store) RecordImage(ctx context.Context, e Entry) (int64, error) {
	if e.RunID == "" {
		return 0, ErrEmptyRunID
	}
	status := normalizeStatus(e.Status)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO images (run_id, idx, path, status, bytes, error_message)
VALUES (?, ?, ?, ?, ?, ?)`, e.RunID, e.Index, e.Path, status, e.Bytes, nullIfEmpty(e.ErrorMessage))
	if err != nil {
		logging.LogLedger("record_image", 0, err)
		return 0, goerr.Wrap(err, "insert image", goerr.V("run_id", e.RunID), goerr.V("index", e.Index))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get insert id: %w", err)
	}
	logging.LogLedger("record_image", id, nil)
	return id, nil
}

// MarkPath updates the status of a previously saved path of the run.
// Returns ErrEmptyPath for an empty path and ErrPathNotFound when no row matches.
func (s *Store) MarkPath(ctx context.Context, runID, path, status, errMsg string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE images SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
WHERE run_id = ? AND path = ?`, normalizeStatus(status), nullIfEmpty(errMsg), runID, path)
	if err != nil {
		logging.LogLedger("mark_path", 0, err)
		return goerr.Wrap(err, "mark path", goerr.V("path", path))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPathNotFound
	}
	logging.LogLedger("mark_path", 0, nil)
	return nil
}

// ListImages returns the image rows of a run ordered by insertion.
func (s *Store) ListImages(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, idx, COALESCE(path, ''), status, bytes, COALESCE(error_message, ''), created_at, updated_at
FROM images WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, goerr.Wrap(err, "list images", goerr.V("run_id", runID))
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Index, &e.Path, &e.Status, &e.Bytes, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of image rows of a run per status.
func (s *Store) CountByStatus(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM images WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, goerr.Wrap(err, "count images", goerr.V("run_id", runID))
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StatusSaved:
		return StatusSaved
	case StatusAborted:
		return StatusAborted
	case StatusDeleted:
		return StatusDeleted
	case StatusMissing:
		return StatusMissing
	default:
		return StatusFailed
	}
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
