// Package ledger keeps a SQLite history of pipeline runs.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"loom_autopublisher/pipeline"
)

// ErrNotFound is returned by Get for unknown run IDs.
var ErrNotFound = errors.New("ledger: run not found")

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID          string            `json:"id"`
	ShareURL    string            `json:"share_url,omitempty"`
	Status      Status            `json:"status"`
	DryRun      pipeline.DryRun   `json:"dry_run"`
	FailedStage pipeline.Stage    `json:"failed_stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	Outcome     *pipeline.Outcome `json:"outcome,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists runs. It satisfies pipeline.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ pipeline.Recorder = (*Store)(nil)

// Open connects to the database at path, creating it when needed, and
// applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent server runs.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger: apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("ledger: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ledger: ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("ledger: scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("ledger: read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("ledger: apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("ledger: record migration %s: %w", version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit migrations: %w", err)
	}
	return nil
}

// Begin records a run as started.
func (s *Store) Begin(ctx context.Context, runID string, req pipeline.Request) error {
	dry, err := json.Marshal(req.DryRun)
	if err != nil {
		return fmt.Errorf("ledger: marshal dry run: %w", err)
	}
	ts := s.timestamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, share_url, status, dry_run_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, nullableString(req.ShareURL), StatusRunning, string(dry), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert run: %w", err)
	}
	return nil
}

// Complete marks a run as completed and stores its outcome.
func (s *Store) Complete(ctx context.Context, runID string, out *pipeline.Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("ledger: marshal outcome: %w", err)
	}
	return s.update(ctx, runID,
		`UPDATE runs SET status = ?, outcome_json = ?, updated_at = ? WHERE id = ?`,
		StatusCompleted, string(payload), s.timestamp(), runID,
	)
}

// Fail marks a run as failed at stage.
func (s *Store) Fail(ctx context.Context, runID string, stage pipeline.Stage, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, runID,
		`UPDATE runs SET status = ?, failed_stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, nullableString(string(stage)), nullableString(msg), s.timestamp(), runID,
	)
}

func (s *Store) update(ctx context.Context, runID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ledger: update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ledger: update run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const selectRun = `SELECT id, share_url, status, dry_run_json, failed_stage, error_message, outcome_json, created_at, updated_at FROM runs`

// Get fetches one run.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get run %s: %w", runID, err)
	}
	return run, nil
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := selectRun + " ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                             Run
		shareURL, dry, stage, msg, outc sql.NullString
		created, updated                string
	)
	if err := sc.Scan(&run.ID, &shareURL, &run.Status, &dry, &stage, &msg, &outc, &created, &updated); err != nil {
		return nil, err
	}
	run.ShareURL = shareURL.String
	run.FailedStage = pipeline.Stage(stage.String)
	run.Error = msg.String
	if dry.Valid && dry.String != "" {
		if err := json.Unmarshal([]byte(dry.String), &run.DryRun); err != nil {
			return nil, fmt.Errorf("decode dry run: %w", err)
		}
	}
	if outc.Valid && outc.String != "" {
		run.Outcome = &pipeline.Outcome{}
		if err := json.Unmarshal([]byte(outc.String), run.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
	}
	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &run, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
