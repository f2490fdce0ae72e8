// Package history keeps a local record of pipeline runs in SQLite so past
// crawls and classification passes can be inspected from the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	mode        TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	pages       INTEGER NOT NULL DEFAULT 0,
	saved       INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Run kinds.
const (
	KindCrawl    = "crawl"
	KindClassify = "classify"
	KindRender   = "render"
)

// Run outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID         uuid.UUID
	Kind       string
	Mode       string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Saved      int
	Skipped    int
	Failed     int
	Outcome    string
	Note       string
}

// Store wraps the runs database. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one finished run.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, mode, target, started_at, finished_at,
			pages, saved, skipped, failed, outcome, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.Mode, run.Target,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Pages, run.Saved, run.Skipped, run.Failed,
		run.Outcome, run.Note,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, mode, target, started_at, finished_at,
			pages, saved, skipped, failed, outcome, note
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run Run
			id  string
		)
		if err := rows.Scan(&id, &run.Kind, &run.Mode, &run.Target,
			&run.StartedAt, &run.FinishedAt,
			&run.Pages, &run.Saved, &run.Skipped, &run.Failed,
			&run.Outcome, &run.Note); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing run id %q: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
