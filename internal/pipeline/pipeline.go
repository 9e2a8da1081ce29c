// Package pipeline composes the shop deployment stages: change extraction,
// planning, dispatch, config writing and linting. Each stage's output is
// passed directly to the next; nothing is shared between runs.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/shopdeploy/internal/core/changeset"
	"github.com/artpar/shopdeploy/internal/core/command"
	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/shell/configwriter"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/runner"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// Config holds the pipeline settings.
type Config struct {
	Layout     deployment.Layout
	DeployTool command.DeployTool
	LintTool   command.LintTool
	// From and To are the default revisions compared when a call passes "".
	From string
	To   string
}

// DefaultConfig returns the defaults of the original shops repository.
func DefaultConfig() Config {
	return Config{
		Layout:     deployment.DefaultLayout(),
		DeployTool: command.DefaultDeployTool(),
		LintTool:   command.DefaultLintTool(),
		From:       git.DefaultFrom,
		To:         git.DefaultTo,
	}
}

// Components are the collaborators a Pipeline drives. History may be nil.
type Components struct {
	Registry   RegistryLoader
	Source     git.Source
	Dispatcher *runner.Dispatcher
	Writer     *configwriter.Writer
	History    store.Store
}

// Pipeline runs the deployment operations.
type Pipeline struct {
	config     Config
	registry   RegistryLoader
	source     git.Source
	dispatcher *runner.Dispatcher
	writer     *configwriter.Writer
	history    store.Store
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(config Config, c Components, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:     config,
		registry:   c.Registry,
		source:     c.Source,
		dispatcher: c.Dispatcher,
		writer:     c.Writer,
		history:    c.History,
		logger:     logger.With("component", "pipeline"),
	}
}

func (p *Pipeline) revisions(from, to string) (string, string) {
	if from == "" {
		from = p.config.From
	}
	if to == "" {
		to = p.config.To
	}
	return from, to
}

// =============================================================================
// Operations
// =============================================================================

// ExtractChanges lists the files under the content root that changed between
// two revisions. A failing source yields git.ErrSourceUnavailable.
func (p *Pipeline) ExtractChanges(ctx context.Context, from, to string) ([]changeset.ChangedFile, error) {
	from, to = p.revisions(from, to)
	raw, err := p.source.ChangedFiles(ctx, from, to)
	if err != nil {
		return nil, err
	}
	files := changeset.Extract(raw, p.config.Layout.ContentRoot)
	p.logger.Debug("extracted changes", "from", from, "to", to, "files", len(files))
	return files, nil
}

// Plan loads the registry, extracts changes and groups them into jobs.
func (p *Pipeline) Plan(ctx context.Context, from, to string) (deployment.PlanResult, error) {
	reg, err := p.registry.Load(ctx)
	if err != nil {
		return deployment.PlanResult{}, err
	}
	files, err := p.ExtractChanges(ctx, from, to)
	if err != nil {
		return deployment.PlanResult{}, err
	}
	plan, err := deployment.Plan(files, reg, p.config.Layout)
	if err != nil {
		return deployment.PlanResult{}, err
	}
	if len(plan.Unmatched) > 0 {
		p.logger.Debug("files matched no shop", "files", plan.Unmatched)
	}
	p.logger.Info("planned deployment", "jobs", len(plan.Jobs), "changed_files", len(files))
	return plan, nil
}

// Deploy plans and runs one deploy command per job. With dryRun the commands
// are built and reported but not executed. Job failures are reported in the
// summary; the returned error is reserved for failures before dispatch.
func (p *Pipeline) Deploy(ctx context.Context, from, to string, dryRun bool) (*Summary, error) {
	from, to = p.revisions(from, to)
	run := p.begin(ctx, OpDeploy, from, to, dryRun)

	plan, err := p.Plan(ctx, from, to)
	if err != nil {
		p.finish(ctx, run, nil, err)
		return nil, err
	}

	summary := &Summary{Operation: OpDeploy, DryRun: dryRun, Unmatched: plan.Unmatched}
	tasks := make([]runner.Task, len(plan.Jobs))
	for i, job := range plan.Jobs {
		tasks[i] = runner.Task{
			Name:       job.Name(),
			Kind:       runner.KindDeploy,
			Invocation: command.Deploy(job, p.config.DeployTool),
		}
		summary.Outcomes = append(summary.Outcomes, Outcome{
			Name:        job.Name(),
			Kind:        KindDeploy,
			Shop:        string(job.Shop),
			Environment: job.Environment.Name,
			Files:       job.Files,
			Command:     tasks[i].Invocation.String(),
			Skipped:     dryRun,
		})
	}

	if dryRun {
		for _, o := range summary.Outcomes {
			p.logger.Info("dry run", "job", o.Name, "command", o.Command)
		}
	} else {
		p.applyReport(summary, p.dispatcher.Dispatch(ctx, tasks))
	}

	p.finish(ctx, run, summary, nil)
	return summary, nil
}

// LintAll runs the lint tool once per registered shop.
func (p *Pipeline) LintAll(ctx context.Context) (*Summary, error) {
	run := p.begin(ctx, OpLintAll, "", "", false)

	reg, err := p.registry.Load(ctx)
	if err != nil {
		p.finish(ctx, run, nil, err)
		return nil, err
	}

	summary := &Summary{Operation: OpLintAll}
	shops := reg.Shops()
	tasks := make([]runner.Task, len(shops))
	for i, s := range shops {
		inv := command.Lint(p.config.Layout, s.Parts, p.config.LintTool)
		tasks[i] = runner.Task{Name: string(s.ID), Kind: runner.KindLint, Invocation: inv}
		summary.Outcomes = append(summary.Outcomes, Outcome{
			Name:    string(s.ID),
			Kind:    KindLint,
			Shop:    string(s.ID),
			Command: inv.String(),
		})
	}

	p.applyReport(summary, p.dispatcher.Dispatch(ctx, tasks))
	p.finish(ctx, run, summary, nil)
	return summary, nil
}

// WriteConfigs writes each shop's deploy tool config from the registry.
// A missing shop directory fails only that shop.
func (p *Pipeline) WriteConfigs(ctx context.Context) (*Summary, error) {
	run := p.begin(ctx, OpWriteConfigs, "", "", false)

	reg, err := p.registry.Load(ctx)
	if err != nil {
		p.finish(ctx, run, nil, err)
		return nil, err
	}

	summary := &Summary{Operation: OpWriteConfigs}
	for _, r := range p.writer.WriteAll(ctx, reg) {
		summary.Outcomes = append(summary.Outcomes, Outcome{
			Name:  string(r.Shop),
			Kind:  KindConfig,
			Shop:  string(r.Shop),
			Files: []string{r.Path},
			Err:   r.Err,
		})
	}

	p.finish(ctx, run, summary, nil)
	return summary, nil
}

func (p *Pipeline) applyReport(summary *Summary, report runner.Report) {
	for i, r := range report.Results {
		o := &summary.Outcomes[i]
		o.ExitCode = r.Result.ExitCode
		o.Duration = r.Result.Duration
		o.Err = r.Err
	}
}

// =============================================================================
// History
// =============================================================================

func (p *Pipeline) begin(ctx context.Context, op, from, to string, dryRun bool) *store.Run {
	if p.history == nil {
		return nil
	}
	run := store.NewRun(op, from, to, dryRun)
	if err := p.history.CreateRun(ctx, run); err != nil {
		p.logger.Warn("failed to record run", "operation", op, "error", err)
		return nil
	}
	return run
}

func (p *Pipeline) finish(ctx context.Context, run *store.Run, summary *Summary, runErr error) {
	if run == nil {
		return
	}
	logger := p.logger.With("run_id", run.ID)

	status := store.RunStatusSucceeded
	exitCode := 0
	errMsg := ""
	switch {
	case runErr != nil:
		status = store.RunStatusFailed
		exitCode = 1
		errMsg = runErr.Error()
	case summary.Failed():
		status = store.RunStatusFailed
		exitCode = summary.ExitCode()
		errMsg = summary.Err().Error()
	}

	if summary != nil {
		summary.RunID = run.ID
		for i, o := range summary.Outcomes {
			rec := &store.JobRecord{
				RunID:       run.ID,
				Seq:         i,
				Name:        o.Name,
				Kind:        o.Kind,
				Shop:        o.Shop,
				Environment: o.Environment,
				Files:       o.Files,
				Command:     o.Command,
				ExitCode:    o.ExitCode,
				Error:       o.Error(),
				Duration:    o.Duration,
			}
			if err := p.history.AddJobRecord(ctx, rec); err != nil {
				logger.Warn("failed to record job", "job", o.Name, "error", err)
			}
		}
	}

	if err := p.history.FinishRun(ctx, run.ID, status, exitCode, errMsg, time.Now().UTC()); err != nil {
		logger.Warn("failed to finish run", "error", err)
	}
}
