package api

import (
	"time"

	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// =============================================================================
// Request Types
// =============================================================================

// DeployRequest is the request body for triggering a deployment.
// All fields are optional; empty revisions use the configured defaults.
type DeployRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Field names the invalid request field for validation errors.
	Field string `json:"field,omitempty"`
}

// OutcomeResponse is one job outcome.
type OutcomeResponse struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Shop        string   `json:"shop"`
	Environment string   `json:"environment,omitempty"`
	Files       []string `json:"files,omitempty"`
	Command     string   `json:"command,omitempty"`
	ExitCode    int      `json:"exit_code"`
	DurationMS  int64    `json:"duration_ms"`
	Skipped     bool     `json:"skipped,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// SummaryResponse is the response for a pipeline operation.
type SummaryResponse struct {
	RunID     string            `json:"run_id,omitempty"`
	Operation string            `json:"operation"`
	DryRun    bool              `json:"dry_run"`
	ExitCode  int               `json:"exit_code"`
	Outcomes  []OutcomeResponse `json:"outcomes"`
	Unmatched []string          `json:"unmatched,omitempty"`
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// RunResponse is one run with its job records.
type RunResponse struct {
	ID         string              `json:"id"`
	Operation  string              `json:"operation"`
	FromRev    string              `json:"from_rev,omitempty"`
	ToRev      string              `json:"to_rev,omitempty"`
	DryRun     bool                `json:"dry_run"`
	Status     string              `json:"status"`
	ExitCode   int                 `json:"exit_code"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Jobs       []JobRecordResponse `json:"jobs,omitempty"`
}

// JobRecordResponse is one recorded job.
type JobRecordResponse struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Shop        string   `json:"shop"`
	Environment string   `json:"environment,omitempty"`
	Files       []string `json:"files,omitempty"`
	Command     string   `json:"command,omitempty"`
	ExitCode    int      `json:"exit_code"`
	DurationMS  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

// =============================================================================
// Converters
// =============================================================================

func summaryToResponse(s *pipeline.Summary) SummaryResponse {
	resp := SummaryResponse{
		RunID:     s.RunID,
		Operation: s.Operation,
		DryRun:    s.DryRun,
		ExitCode:  s.ExitCode(),
		Outcomes:  make([]OutcomeResponse, 0, len(s.Outcomes)),
		Unmatched: s.Unmatched,
	}
	for _, o := range s.Outcomes {
		resp.Outcomes = append(resp.Outcomes, OutcomeResponse{
			Name:        o.Name,
			Kind:        o.Kind,
			Shop:        o.Shop,
			Environment: o.Environment,
			Files:       o.Files,
			Command:     o.Command,
			ExitCode:    o.ExitCode,
			DurationMS:  o.Duration.Milliseconds(),
			Skipped:     o.Skipped,
			Error:       o.Error(),
		})
	}
	return resp
}

func runToResponse(r *store.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		Operation:  r.Operation,
		FromRev:    r.FromRev,
		ToRev:      r.ToRev,
		DryRun:     r.DryRun,
		Status:     string(r.Status),
		ExitCode:   r.ExitCode,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, j := range r.Jobs {
		resp.Jobs = append(resp.Jobs, JobRecordResponse{
			Name:        j.Name,
			Kind:        j.Kind,
			Shop:        j.Shop,
			Environment: j.Environment,
			Files:       j.Files,
			Command:     j.Command,
			ExitCode:    j.ExitCode,
			DurationMS:  j.Duration.Milliseconds(),
			Error:       j.Error,
		})
	}
	return resp
}
