package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/artpar/shopdeploy/internal/core/command"
)

// Task kinds.
const (
	KindDeploy = "deploy"
	KindLint   = "lint"
)

// Task is one named invocation to dispatch.
type Task struct {
	// Name identifies the task in logs and reports (e.g., "acme/production").
	Name       string
	Kind       string
	Invocation command.Invocation
}

// TaskResult pairs a task with its outcome. Err is nil on success and a
// *CommandError otherwise.
type TaskResult struct {
	Task   Task
	Result Result
	Err    error
}

// Report holds task results in dispatch input order.
type Report struct {
	Results []TaskResult
}

// Failed reports whether any task failed.
func (r Report) Failed() bool {
	return lo.SomeBy(r.Results, func(tr TaskResult) bool { return tr.Err != nil })
}

// Failures returns the failed task results.
func (r Report) Failures() []TaskResult {
	return lo.Filter(r.Results, func(tr TaskResult, _ int) bool { return tr.Err != nil })
}

// ExitCode is 1 if any task failed, else 0.
func (r Report) ExitCode() int {
	if r.Failed() {
		return 1
	}
	return 0
}

// =============================================================================
// Dispatcher
// =============================================================================

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// MaxConcurrent bounds how many commands run at once.
	// Default: 4. Use 1 for strictly sequential dispatch.
	MaxConcurrent int
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{MaxConcurrent: 4}
}

// Dispatcher runs tasks through an Executor with bounded concurrency.
// A failing task never prevents the remaining tasks from running.
type Dispatcher struct {
	executor Executor
	config   DispatcherConfig
	metrics  *Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(executor Executor, config DispatcherConfig, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultDispatcherConfig().MaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		executor: executor,
		config:   config,
		metrics:  metrics,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch runs every task and returns their results in input order.
// Tasks not yet started when ctx is cancelled are reported as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []Task) Report {
	results := make([]TaskResult, len(tasks))
	if len(tasks) == 0 {
		return Report{Results: results}
	}

	d.logger.Debug("dispatching tasks", "count", len(tasks), "max_concurrent", d.config.MaxConcurrent)

	sem := make(chan struct{}, d.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				res := Result{ExitCode: -1, Err: ctx.Err()}
				results[i] = TaskResult{Task: task, Result: res, Err: NewCommandError(task.Name, res)}
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			results[i] = d.runTask(ctx, task)
		}(i, tasks[i])
	}

	wg.Wait()

	report := Report{Results: results}
	d.logger.Info("dispatch complete",
		"tasks", len(tasks),
		"failed", len(report.Failures()),
	)
	return report
}

func (d *Dispatcher) runTask(ctx context.Context, task Task) TaskResult {
	logger := d.logger.With("task", task.Name, "kind", task.Kind)
	logger.Info("running", "command", task.Invocation.String())

	res := d.executor.Run(ctx, task.Invocation)
	d.metrics.observe(task.Kind, res.Failed(), res.Duration)

	tr := TaskResult{Task: task, Result: res}
	if !res.Failed() {
		logger.Info("succeeded", "duration", res.Duration.Round(time.Millisecond))
		return tr
	}

	cmdErr := NewCommandError(task.Name, res)
	tr.Err = cmdErr
	logger.Error("failed",
		"exit_code", res.ExitCode,
		"duration", res.Duration.Round(time.Millisecond),
		"error", cmdErr,
	)
	return tr
}

// Err joins the errors of all failed tasks, or returns nil.
func (r Report) Err() error {
	return errors.Join(lo.Map(r.Failures(), func(tr TaskResult, _ int) error { return tr.Err })...)
}
