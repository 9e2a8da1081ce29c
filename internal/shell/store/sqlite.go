package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Fixed-width UTC timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID         string  `db:"id"`
	Operation  string  `db:"operation"`
	FromRev    string  `db:"from_rev"`
	ToRev      string  `db:"to_rev"`
	DryRun     bool    `db:"dry_run"`
	Status     string  `db:"status"`
	ExitCode   int     `db:"exit_code"`
	Error      string  `db:"error"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, exitCode int, errMsg string, finishedAt time.Time) error {
	return finishRun(ctx, s.db, id, status, exitCode, errMsg, finishedAt)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := getRun(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	run.Jobs, err = listJobRecords(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	return listRuns(ctx, s.db, opts)
}

func createRun(ctx context.Context, exec executor, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	query := `
		INSERT INTO runs (
			id, operation, from_rev, to_rev, dry_run, status, exit_code, error, started_at, finished_at
		) VALUES (
			:id, :operation, :from_rev, :to_rev, :dry_run, :status, :exit_code, :error, :started_at, :finished_at
		)`

	row := map[string]any{
		"id":          run.ID,
		"operation":   run.Operation,
		"from_rev":    run.FromRev,
		"to_rev":      run.ToRev,
		"dry_run":     run.DryRun,
		"status":      string(run.Status),
		"exit_code":   run.ExitCode,
		"error":       run.Error,
		"started_at":  formatTime(run.StartedAt),
		"finished_at": formatTimePtr(run.FinishedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func finishRun(ctx context.Context, exec executor, id string, status RunStatus, exitCode int, errMsg string, finishedAt time.Time) error {
	query := `UPDATE runs SET status = ?, exit_code = ?, error = ?, finished_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, string(status), exitCode, errMsg, formatTime(finishedAt), id)
	if err != nil {
		return NewStoreError("FinishRun", "run", id, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("FinishRun", "run", id, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("FinishRun", "run", id, "run not found", ErrNotFound)
	}
	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*Run, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	return rowToRun(&row), nil
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]Run, error) {
	opts = opts.Normalize()

	var rows []runRow
	var err error
	if opts.Operation != "" {
		query := `SELECT * FROM runs WHERE operation = ? ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Operation, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, *rowToRun(&row))
	}
	return runs, nil
}

func rowToRun(row *runRow) *Run {
	run := &Run{
		ID:        row.ID,
		Operation: row.Operation,
		FromRev:   row.FromRev,
		ToRev:     row.ToRev,
		DryRun:    row.DryRun,
		Status:    RunStatus(row.Status),
		ExitCode:  row.ExitCode,
		Error:     row.Error,
		StartedAt: parseTime(row.StartedAt),
	}
	if row.FinishedAt != nil {
		t := parseTime(*row.FinishedAt)
		run.FinishedAt = &t
	}
	return run
}

// =============================================================================
// Job Record Operations
// =============================================================================

// jobRecordRow represents a job_records row in the database.
type jobRecordRow struct {
	ID          int64  `db:"id"`
	RunID       string `db:"run_id"`
	Seq         int    `db:"seq"`
	Name        string `db:"name"`
	Kind        string `db:"kind"`
	Shop        string `db:"shop"`
	Environment string `db:"environment"`
	Files       string `db:"files"`
	Command     string `db:"command"`
	ExitCode    int    `db:"exit_code"`
	Error       string `db:"error"`
	DurationMS  int64  `db:"duration_ms"`
}

func (s *SQLiteStore) AddJobRecord(ctx context.Context, rec *JobRecord) error {
	return addJobRecord(ctx, s.db, rec)
}

func addJobRecord(ctx context.Context, exec executor, rec *JobRecord) error {
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return NewStoreError("AddJobRecord", "job_record", rec.RunID, "failed to serialize files", ErrInvalidData)
	}

	query := `
		INSERT INTO job_records (
			run_id, seq, name, kind, shop, environment, files, command, exit_code, error, duration_ms
		) VALUES (
			:run_id, :seq, :name, :kind, :shop, :environment, :files, :command, :exit_code, :error, :duration_ms
		)`

	row := map[string]any{
		"run_id":      rec.RunID,
		"seq":         rec.Seq,
		"name":        rec.Name,
		"kind":        rec.Kind,
		"shop":        rec.Shop,
		"environment": rec.Environment,
		"files":       string(filesJSON),
		"command":     rec.Command,
		"exit_code":   rec.ExitCode,
		"error":       rec.Error,
		"duration_ms": rec.Duration.Milliseconds(),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("AddJobRecord", "job_record", rec.RunID, "run does not exist", ErrForeignKey)
		}
		return NewStoreError("AddJobRecord", "job_record", rec.RunID, err.Error(), err)
	}
	return nil
}

func listJobRecords(ctx context.Context, exec executor, runID string) ([]JobRecord, error) {
	query := `SELECT * FROM job_records WHERE run_id = ? ORDER BY seq, id`

	var rows []jobRecordRow
	if err := exec.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, NewStoreError("GetRun", "job_record", runID, err.Error(), err)
	}

	records := make([]JobRecord, 0, len(rows))
	for _, row := range rows {
		var files []string
		if err := json.Unmarshal([]byte(row.Files), &files); err != nil {
			return nil, NewStoreError("GetRun", "job_record", runID, "failed to deserialize files", ErrInvalidData)
		}
		records = append(records, JobRecord{
			RunID:       row.RunID,
			Seq:         row.Seq,
			Name:        row.Name,
			Kind:        row.Kind,
			Shop:        row.Shop,
			Environment: row.Environment,
			Files:       files,
			Command:     row.Command,
			ExitCode:    row.ExitCode,
			Error:       row.Error,
			Duration:    time.Duration(row.DurationMS) * time.Millisecond,
		})
	}
	return records, nil
}

// =============================================================================
// Time Helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
