package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/artpar/shopdeploy/internal/core/validation"
	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// =============================================================================
// Shared Flags
// =============================================================================

var (
	fromRev     string
	toRev       string
	changesFile string
	dryRun      bool
	configMode  string
	format      string

	historyLimit     int
	historyOffset    int
	historyOperation string
)

// setup loads configuration and builds the logger.
func setup(cmd *cobra.Command) (*Config, *slog.Logger, error) {
	if err := checkFormat(format); err != nil {
		return nil, nil, err
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := SetupLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	logger.Debug("configuration loaded",
		"version", Version,
		"config", configPath,
		"repo_dir", cfg.Source.RepoDir,
	)
	return cfg, logger, nil
}

// checkRevisions rejects --from/--to values git would misread.
func checkRevisions() error {
	if field, msg := validation.ValidateRevisions(fromRev, toRev); field != "" {
		return fmt.Errorf("%w: --%s: %s", ErrInvalidConfig, field, msg)
	}
	return nil
}

func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	opts.Stdin = cmd.InOrStdin()
	return newApp(cfg, logger, opts)
}

// finishSummary prints a summary and turns failed jobs into errJobsFailed.
func finishSummary(cmd *cobra.Command, s *pipeline.Summary) error {
	if err := printSummary(cmd.OutOrStdout(), s, format); err != nil {
		return err
	}
	if s.Failed() {
		return errJobsFailed
	}
	return nil
}

// =============================================================================
// extract-changes
// =============================================================================

var extractChangesCmd = &cobra.Command{
	Use:   "extract-changes",
	Short: "List changed theme files between two revisions",
	Long: `List the files under the content root that changed between two revisions,
relative to the content root, in diff order.`,
	Example: `  shopdeploy extract-changes
  shopdeploy extract-changes --from v1.4.0 --to main
  git diff --name-only HEAD~3 HEAD | shopdeploy extract-changes --changes-file -`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRevisions(); err != nil {
			return err
		}
		a, err := openApp(cmd, appOptions{ChangesFile: changesFile})
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.pipeline.ExtractChanges(cmd.Context(), fromRev, toRev)
		if err != nil {
			return err
		}
		return printChanges(cmd.OutOrStdout(), files, format)
	},
}

// =============================================================================
// plan-and-deploy
// =============================================================================

var planAndDeployCmd = &cobra.Command{
	Use:   "plan-and-deploy",
	Short: "Deploy changed files to every shop environment that owns them",
	Long: `Extract the changed files, map them onto configured shops and run the theme
deploy tool once per affected shop environment. A failed job does not stop the
others; the exit status is non-zero if any job failed.`,
	Example: `  shopdeploy plan-and-deploy
  shopdeploy plan-and-deploy --dry-run
  shopdeploy plan-and-deploy --from origin/main --to HEAD --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRevisions(); err != nil {
			return err
		}
		a, err := openApp(cmd, appOptions{ChangesFile: changesFile})
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.pipeline.Deploy(cmd.Context(), fromRev, toRev, dryRun)
		if err != nil {
			return err
		}
		return finishSummary(cmd, summary)
	},
}

// =============================================================================
// write-configs
// =============================================================================

var writeConfigsCmd = &cobra.Command{
	Use:   "write-configs",
	Short: "Write each shop's theme tool config.yml from the registry",
	Long: `Render one block per environment for every configured shop and write it to
<content-root>/<merchant>/<variant>/config.yml. In append mode blocks are
appended to the existing file; in replace mode each environment block is
replaced in place.`,
	Example: `  shopdeploy write-configs
  shopdeploy write-configs --mode replace`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{Mode: configMode})
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.pipeline.WriteConfigs(cmd.Context())
		if err != nil {
			return err
		}
		return finishSummary(cmd, summary)
	},
}

// =============================================================================
// lint-all
// =============================================================================

var lintAllCmd = &cobra.Command{
	Use:     "lint-all",
	Short:   "Run the theme lint tool against every configured shop",
	Example: `  shopdeploy lint-all`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.pipeline.LintAll(cmd.Context())
		if err != nil {
			return err
		}
		return finishSummary(cmd, summary)
	},
}

// =============================================================================
// history
// =============================================================================

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded pipeline runs",
	Long:  `Show pipeline runs recorded in the history database (history.dsn).`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Example: `  shopdeploy history list
  shopdeploy history list --operation plan-and-deploy --limit 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.ListOptions{
			Limit:     historyLimit,
			Offset:    historyOffset,
			Operation: historyOperation,
		}.Normalize()
		runs, err := s.ListRuns(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printRuns(cmd.OutOrStdout(), runs, format)
	},
}

var historyShowCmd = &cobra.Command{
	Use:     "show <run-id>",
	Short:   "Show one run and its jobs",
	Example: `  shopdeploy history show 3f2c9a1e-7d4b-4c1e-9f0a-2b6d8e5c1a7f`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		run, err := s.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRun(cmd.OutOrStdout(), run, format)
	},
}

func openHistory(cmd *cobra.Command) (store.Store, error) {
	cfg, _, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.History.DSN == "" {
		return nil, fmt.Errorf("%w: history.dsn is not set", ErrInvalidConfig)
	}
	s, err := store.NewSQLiteStore(cfg.History.DSN)
	if err != nil {
		return nil, &ServerError{Op: "OpenHistory", Err: err, ExitCode: ExitDatabaseError}
	}
	return s, nil
}

// =============================================================================
// serve
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deploy trigger, run history and metrics over HTTP",
	Long: `Start an HTTP server exposing POST /api/v1/deploy, GET /api/v1/runs,
GET /health and GET /metrics. The API document is served at
GET /api/v1/openapi.json. Deploys run one at a time.`,
	Example: `  SHOPDEPLOY_SERVER_TOKEN=s3cret shopdeploy serve --config shopdeploy.yaml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info("starting shopdeploy",
			"version", Version,
			"config", configPath,
		)
		return NewServer(cfg, a, logger).Start(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{extractChangesCmd, planAndDeployCmd} {
		c.Flags().StringVar(&fromRev, "from", "", "Base revision (default source.from)")
		c.Flags().StringVar(&toRev, "to", "", "Target revision (default source.to)")
		c.Flags().StringVar(&changesFile, "changes-file", "", `Read "git diff --name-only" output from a file ("-" for stdin)`)
	}
	planAndDeployCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and print commands without running them")
	writeConfigsCmd.Flags().StringVar(&configMode, "mode", "", "Write mode: append or replace (default configs.mode)")

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Runs to skip")
	historyListCmd.Flags().StringVar(&historyOperation, "operation", "", "Only list runs of this operation")
	historyCmd.AddCommand(historyListCmd, historyShowCmd)

	RootCmd.PersistentFlags().StringVarP(&format, "format", "f", FormatTable, "Output format: table or json")

	RootCmd.AddCommand(extractChangesCmd, planAndDeployCmd, writeConfigsCmd, lintAllCmd, historyCmd, serveCmd)
}
