package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/core/shop"
	"github.com/artpar/shopdeploy/internal/core/shopconfig"
	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/runner"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess           = 0
	ExitJobFailed         = 1
	ExitConfigError       = 2
	ExitSourceUnavailable = 3
	ExitHTTPServerError   = 4
	ExitDatabaseError     = 5
)

// errJobsFailed is returned by commands whose summary contains a failed job.
// The summary has already been printed, so run does not print it again.
var errJobsFailed = errors.New("one or more jobs failed")

// =============================================================================
// Root Command
// =============================================================================

var configPath string

// RootCmd is the shopdeploy entry point.
var RootCmd = &cobra.Command{
	Use:   "shopdeploy",
	Short: "Deploy changed Shopify themes to the shops they belong to",
	Long: `shopdeploy maps files changed between two revisions of a multi-shop theme
repository onto the shops and environments that own them, then runs the theme
deploy tool once per affected shop environment.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	RootCmd.SetVersionTemplate(fmt.Sprintf("shopdeploy %s (built %s)\n", Version, BuildTime))
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := exitCode(err)
	if !errors.Is(err, errJobsFailed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return code
}

// exitCode classifies a command error into a process exit code.
func exitCode(err error) int {
	var sErr *ServerError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &sErr):
		return sErr.ExitCode
	case errors.Is(err, git.ErrSourceUnavailable):
		return ExitSourceUnavailable
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, pipeline.ErrRegistryUnavailable),
		errors.Is(err, shop.ErrInvalidRegistry),
		errors.Is(err, shop.ErrInvalidShopID),
		errors.Is(err, shop.ErrDuplicateShop),
		errors.Is(err, shop.ErrDuplicateEnvironment),
		errors.Is(err, deployment.ErrInvalidIgnorePattern),
		errors.Is(err, deployment.ErrThemeRootConflict),
		errors.Is(err, shopconfig.ErrUnknownMode),
		errors.Is(err, runner.ErrEnvFile):
		return ExitConfigError
	default:
		return ExitJobFailed
	}
}
