package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/artpar/shopdeploy/internal/core/command"
)

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	// Err is set when the process could not be started or waited on.
	Err error
}

// Failed reports whether the command failed. A process that never started
// counts as a failure.
func (r Result) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

// Executor runs a single invocation to completion.
type Executor interface {
	Run(ctx context.Context, inv command.Invocation) Result
}

// =============================================================================
// ExecExecutor
// =============================================================================

// ExecExecutor runs invocations as child processes.
type ExecExecutor struct {
	// BaseDir is the repository root; invocation directories are relative to it.
	BaseDir string
	// Env holds extra KEY=VALUE entries appended to every child's environment.
	Env    []string
	Logger *slog.Logger
}

// NewExecExecutor creates an executor rooted at baseDir. When envFile is set
// its variables are passed to every child process.
func NewExecExecutor(baseDir, envFile string, logger *slog.Logger) (*ExecExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ExecExecutor{
		BaseDir: baseDir,
		Logger:  logger.With("component", "executor"),
	}
	if envFile != "" {
		env, err := LoadEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		e.Env = env
		e.Logger.Debug("loaded env file", "path", envFile, "count", len(env))
	}
	return e, nil
}

// LoadEnvFile reads a dotenv file into sorted KEY=VALUE entries.
func LoadEnvFile(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrEnvFile, path, err)
	}
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

// Run starts the process, waits for it and captures its output. Non-zero
// exits are reported through ExitCode; spawn failures set Err and ExitCode -1.
func (e *ExecExecutor) Run(ctx context.Context, inv command.Invocation) Result {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = e.dir(inv.Dir)
	if len(e.Env) > 0 || len(inv.Env) > 0 {
		env := append(os.Environ(), e.Env...)
		cmd.Env = append(env, inv.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running command", "command", inv.String())
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// Killed by a signal, typically context cancellation.
			res.Err = err
		}
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

func (e *ExecExecutor) dir(rel string) string {
	switch {
	case rel == "":
		return e.BaseDir
	case filepath.IsAbs(rel) || e.BaseDir == "":
		return rel
	default:
		return filepath.Join(e.BaseDir, filepath.FromSlash(rel))
	}
}
