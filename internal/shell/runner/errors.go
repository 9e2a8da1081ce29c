// Package runner executes external tool invocations and dispatches batches of
// them with per-task failure isolation.
// This is part of the Imperative Shell - it starts processes; invocations are
// built by internal/core/command.
package runner

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCommandFailed is returned when an external command exits non-zero
	// or cannot be started.
	ErrCommandFailed = errors.New("external command failed")

	// ErrEnvFile is returned when the dispatch env file cannot be read.
	ErrEnvFile = errors.New("cannot read env file")
)

// CommandError describes a failed task.
type CommandError struct {
	Task     string // Task name (e.g., "acme/production")
	ExitCode int    // -1 when the process never started
	Stderr   string // Tail of the captured stderr
	Err      error  // Underlying start or wait error, if any
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", e.Task, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap reports ErrCommandFailed together with the underlying cause.
func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

const stderrTail = 2048

// NewCommandError builds a CommandError from a task result, keeping only the
// last part of stderr.
func NewCommandError(task string, res Result) *CommandError {
	stderr := res.Stderr
	if len(stderr) > stderrTail {
		stderr = "..." + stderr[len(stderr)-stderrTail:]
	}
	return &CommandError{
		Task:     task,
		ExitCode: res.ExitCode,
		Stderr:   stderr,
		Err:      res.Err,
	}
}
