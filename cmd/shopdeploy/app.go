package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/artpar/shopdeploy/internal/core/shopconfig"
	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/configwriter"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/runner"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// stdinName selects standard input for --changes-file.
const stdinName = "-"

// app is one assembled pipeline with the resources it owns.
type app struct {
	pipeline *pipeline.Pipeline
	history  store.Store
	logger   *slog.Logger
}

// appOptions carry per-invocation overrides from command flags.
type appOptions struct {
	// ChangesFile replaces the revision-diff source with pre-captured
	// `git diff --name-only` output. "-" reads standard input.
	ChangesFile string
	// Mode overrides configs.mode for write-configs.
	Mode string
	// Registerer receives dispatch metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
	Stdin      io.Reader
}

// newApp wires the pipeline from configuration.
func newApp(cfg *Config, logger *slog.Logger, opts appOptions) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	repoDir, err := filepath.Abs(cfg.Source.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("%w: source.repo_dir: %w", ErrInvalidConfig, err)
	}

	source, err := newSource(cfg, repoDir, logger, opts)
	if err != nil {
		return nil, err
	}

	executor, err := runner.NewExecExecutor(repoDir, cfg.Dispatch.EnvFile, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := runner.NewDispatcher(executor, runner.DispatcherConfig{
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
	}, runner.NewMetrics(opts.Registerer), logger)

	modeName := cfg.Configs.Mode
	if opts.Mode != "" {
		modeName = opts.Mode
	}
	mode, err := shopconfig.ParseMode(modeName)
	if err != nil {
		return nil, err
	}

	repoFs := afero.NewBasePathFs(afero.NewOsFs(), repoDir)
	pcfg := cfg.PipelineConfig()
	writer := configwriter.New(repoFs, pcfg.Layout, mode, logger)

	var history store.Store
	if cfg.History.DSN != "" {
		s, err := store.NewSQLiteStore(cfg.History.DSN)
		if err != nil {
			return nil, &ServerError{
				Op:       "OpenHistory",
				Err:      err,
				ExitCode: ExitDatabaseError,
			}
		}
		history = s
	}

	p := pipeline.New(pcfg, pipeline.Components{
		Registry:   registryLoader(cfg, repoFs),
		Source:     source,
		Dispatcher: dispatcher,
		Writer:     writer,
		History:    history,
	}, logger)

	return &app{pipeline: p, history: history, logger: logger}, nil
}

// Close releases the history store.
func (a *app) Close() {
	if a.history == nil {
		return
	}
	if err := a.history.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}
}

func newSource(cfg *Config, repoDir string, logger *slog.Logger, opts appOptions) (git.Source, error) {
	switch opts.ChangesFile {
	case "":
		return git.NewSource(cfg.Source.Kind, repoDir, logger)
	case stdinName:
		data, err := io.ReadAll(opts.Stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: reading stdin: %w", git.ErrSourceUnavailable, err)
		}
		return git.StaticSource{Text: string(data)}, nil
	default:
		data, err := os.ReadFile(opts.ChangesFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", git.ErrSourceUnavailable, err)
		}
		return git.StaticSource{Text: string(data)}, nil
	}
}

// registryLoader reads relative registry paths from the repository.
func registryLoader(cfg *Config, repoFs afero.Fs) pipeline.FileRegistry {
	if filepath.IsAbs(cfg.Registry.Path) {
		return pipeline.FileRegistry{
			Fs:        afero.NewOsFs(),
			Path:      cfg.Registry.Path,
			Delimiter: cfg.Layout.ShopDelimiter,
		}
	}
	return pipeline.FileRegistry{
		Fs:        repoFs,
		Path:      cfg.Registry.Path,
		Delimiter: cfg.Layout.ShopDelimiter,
	}
}
