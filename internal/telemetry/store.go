// Package telemetry persists a durable history of worker runs to a local
// SQLite database, independent of the per-run JSON trace manifests: where a
// trace manifest describes one run, the store accumulates totals across all
// of them for a workspace.
package telemetry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// Store records worker run outcomes in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the database at dbPath, returning a
// Store backed by a single write connection — SQLite only supports one
// writer at a time, so a pool wider than one connection just serializes at
// the database's lock instead of in Go.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying telemetry migration v1: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRecord is one worker run's outcome, as stored in worker_runs.
type RunRecord struct {
	WorkerID  string
	Branch    string
	Task      string
	StartedAt time.Time
	EndedAt   time.Time
	Result    *core.WorkerResult // nil when the run failed before completing
	Error     string
}

// RecordRun inserts or replaces a run's row. Runs are immutable once
// recorded except for the rare case of a commander restarting the same
// worker ID after a crash, which re-records under the same primary key.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	var success int
	var tokensIn, tokensOut, toolCount, filesChanged, durationMS int64
	if rec.Result != nil {
		success = 1
		toolCount = int64(rec.Result.ToolCount)
		filesChanged = int64(len(rec.Result.FilesChanged))
		durationMS = rec.Result.DurationMS
		if rec.Result.Usage != nil {
			tokensIn = rec.Result.Usage.InputTokens
			tokensOut = rec.Result.Usage.OutputTokens
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_runs (worker_id, branch, task, started_at, ended_at, success, tokens_in, tokens_out, tool_count, files_changed, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			ended_at=excluded.ended_at, success=excluded.success, tokens_in=excluded.tokens_in,
			tokens_out=excluded.tokens_out, tool_count=excluded.tool_count,
			files_changed=excluded.files_changed, duration_ms=excluded.duration_ms, error=excluded.error`,
		rec.WorkerID, rec.Branch, rec.Task, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
		success, tokensIn, tokensOut, toolCount, filesChanged, durationMS, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("recording worker run: %w", err)
	}
	return nil
}

// Totals summarizes every run recorded so far.
type Totals struct {
	RunCount       int
	SuccessCount   int
	TotalTokensIn  int64
	TotalTokensOut int64
	TotalFiles     int64
}

// Totals computes aggregate usage across all recorded runs.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(SUM(tokens_in), 0),
		       COALESCE(SUM(tokens_out), 0), COALESCE(SUM(files_changed), 0)
		FROM worker_runs`)
	if err := row.Scan(&t.RunCount, &t.SuccessCount, &t.TotalTokensIn, &t.TotalTokensOut, &t.TotalFiles); err != nil {
		return Totals{}, fmt.Errorf("computing telemetry totals: %w", err)
	}
	return t, nil
}
