// Package buildlog records index build runs in a local SQLite database.
package buildlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/ledger-search/internal/logger"
)

// Run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

const maxErrorLen = 2000

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run has the requested build id.
var ErrRunNotFound = errors.New("build run not found")

// Run is one row of the build_runs table.
type Run struct {
	BuildID    string     `json:"build_id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	Dimension  int        `json:"dimension"`
	Error      string     `json:"error,omitempty"`
}

// Recorder is what the index builder needs from the build ledger.
type Recorder interface {
	StartRun(ctx context.Context, source string) (string, error)
	MarkRunSucceeded(ctx context.Context, buildID string, records, dimension int) error
	MarkRunFailed(ctx context.Context, buildID string, buildErr error)
}

// Store is the SQLite-backed Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the build ledger at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("buildlog.Open: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("buildlog.Open: open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS build_runs (
			build_id    TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			finished_at TEXT NULL,
			status      TEXT NOT NULL,
			records     INTEGER NOT NULL DEFAULT 0,
			dimension   INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_build_runs_started ON build_runs (started_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("buildlog.Open: create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a RUNNING row and returns the generated build id.
func (s *Store) StartRun(ctx context.Context, source string) (string, error) {
	buildID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_runs (build_id, source, started_at, status) VALUES (?, ?, ?, ?)`,
		buildID, source, formatTime(time.Now()), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("StartRun: insert: %w", err)
	}
	return buildID, nil
}

// MarkRunSucceeded sets status=SUCCESS, finished_at and the build shape.
func (s *Store) MarkRunSucceeded(ctx context.Context, buildID string, records, dimension int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE build_runs SET status = ?, finished_at = ?, records = ?, dimension = ?, error = ''
		 WHERE build_id = ?`,
		StatusSuccess, formatTime(time.Now()), records, dimension, buildID,
	)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("MarkRunSucceeded: %s: %w", buildID, ErrRunNotFound)
	}
	return nil
}

// MarkRunFailed sets status=FAILED, finished_at and error. Failures to record
// the failure are logged, not returned.
func (s *Store) MarkRunFailed(ctx context.Context, buildID string, buildErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if buildErr != nil {
		errMsg = buildErr.Error()
		errMsg = truncate(errMsg, maxErrorLen)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE build_runs SET status = ?, finished_at = ?, error = ? WHERE build_id = ?`,
		StatusFailed, formatTime(time.Now()), errMsg, buildID,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("build_id", buildID).
			Msg("MarkRunFailed: update failed")
	}
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, buildID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT build_id, source, started_at, finished_at, status, records, dimension, error
		 FROM build_runs WHERE build_id = ?`, buildID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetRun: %s: %w", buildID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRun: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, source, started_at, finished_at, status, records, dimension, error
		 FROM build_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: query: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRuns: scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&run.BuildID, &run.Source, &started, &finished, &run.Status,
		&run.Records, &run.Dimension, &run.Error); err != nil {
		return nil, err
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished.String, err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var _ Recorder = (*Store)(nil)
