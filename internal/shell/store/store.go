package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Entities
// =============================================================================

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the persisted summary of one pipeline operation.
type Run struct {
	ID         string      `json:"id"`
	Operation  string      `json:"operation"`
	FromRev    string      `json:"from_rev,omitempty"`
	ToRev      string      `json:"to_rev,omitempty"`
	DryRun     bool        `json:"dry_run"`
	Status     RunStatus   `json:"status"`
	ExitCode   int         `json:"exit_code"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Jobs       []JobRecord `json:"jobs,omitempty"`
}

// NewRun creates a running Run with a fresh id.
func NewRun(operation, fromRev, toRev string, dryRun bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Operation: operation,
		FromRev:   fromRev,
		ToRev:     toRev,
		DryRun:    dryRun,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// JobRecord is the outcome of one job within a run.
type JobRecord struct {
	RunID       string        `json:"run_id"`
	Seq         int           `json:"seq"`
	Name        string        `json:"name"`
	Kind        string        `json:"kind"`
	Shop        string        `json:"shop"`
	Environment string        `json:"environment,omitempty"`
	Files       []string      `json:"files,omitempty"`
	Command     string        `json:"command,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Succeeded reports whether the job finished without error.
func (j JobRecord) Succeeded() bool {
	return j.Error == "" && j.ExitCode == 0
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, exitCode int, errMsg string, finishedAt time.Time) error
	AddJobRecord(ctx context.Context, rec *JobRecord) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]Run, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
	// Operation filters runs by operation name when set.
	Operation string
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
