package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/core/shop"
	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/runner"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testRegistry = `
acme:
  production:
    password: $ACME_PASSWORD
    theme_id: 101
    store: acme.myshopify.com
shop10-dawn:
  production:
    password: $SHOP10_PASSWORD
    theme_id: 202
    store: shop10.myshopify.com
`

const testChanges = `shops/acme/theme/templates/index.liquid
shops/shop10/dawn/assets/theme.css
shops/shop1/theme/layout/theme.liquid
package.json
`

// testRepo lays out a repository with a registry and shop theme directories.
func testRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(testRegistry), 0644))
	for _, d := range []string{"shops/acme/theme", "shops/shop10/dawn"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0755))
	}
	return dir
}

func testConfig(t *testing.T, repoDir string) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Source.RepoDir = repoDir
	return cfg
}

func writeChanges(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.txt")
	require.NoError(t, os.WriteFile(path, []byte(testChanges), 0644))
	return path
}

// =============================================================================
// App Wiring Tests
// =============================================================================

func TestNewApp_DryRunFromChangesFile(t *testing.T) {
	repo := testRepo(t)
	cfg := testConfig(t, repo)

	a, err := newApp(cfg, nil, appOptions{
		ChangesFile: writeChanges(t),
		Registerer:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.pipeline.Deploy(context.Background(), "", "", true)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, "acme/production", summary.Outcomes[0].Name)
	assert.Equal(t, []string{"templates/index.liquid"}, summary.Outcomes[0].Files)
	assert.Equal(t, "cd shops/acme/theme && theme deploy templates/index.liquid --allow-live --env=production", summary.Outcomes[0].Command)
	assert.Equal(t, "shop10-dawn/production", summary.Outcomes[1].Name)
	assert.True(t, summary.Outcomes[1].Skipped)
	assert.Equal(t, []string{"shop1/theme/layout/theme.liquid"}, summary.Unmatched)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestNewApp_ChangesFromStdin(t *testing.T) {
	cfg := testConfig(t, testRepo(t))

	a, err := newApp(cfg, nil, appOptions{
		ChangesFile: stdinName,
		Stdin:       strings.NewReader("shops/acme/theme/a.liquid\n"),
		Registerer:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer a.Close()

	files, err := a.pipeline.ExtractChanges(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "acme/theme/a.liquid", files[0].Path)
}

func TestNewApp_MissingChangesFile(t *testing.T) {
	cfg := testConfig(t, testRepo(t))

	_, err := newApp(cfg, nil, appOptions{ChangesFile: filepath.Join(t.TempDir(), "nope.txt")})

	assert.ErrorIs(t, err, git.ErrSourceUnavailable)
	assert.Equal(t, ExitSourceUnavailable, exitCode(err))
}

func TestNewApp_MissingEnvFile(t *testing.T) {
	cfg := testConfig(t, testRepo(t))
	cfg.Dispatch.EnvFile = filepath.Join(t.TempDir(), "missing.env")

	_, err := newApp(cfg, nil, appOptions{})

	assert.ErrorIs(t, err, runner.ErrEnvFile)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestNewApp_ModeOverride(t *testing.T) {
	cfg := testConfig(t, testRepo(t))

	_, err := newApp(cfg, nil, appOptions{Mode: "sideways", Registerer: prometheus.NewRegistry()})

	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestNewApp_WriteConfigsInRepo(t *testing.T) {
	repo := testRepo(t)
	cfg := testConfig(t, repo)

	a, err := newApp(cfg, nil, appOptions{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.pipeline.WriteConfigs(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Failed())

	data, err := os.ReadFile(filepath.Join(repo, "shops", "shop10", "dawn", "config.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "production:")
	assert.Contains(t, string(data), "theme_id: 202")
}

func TestNewApp_RecordsHistory(t *testing.T) {
	cfg := testConfig(t, testRepo(t))
	cfg.History.DSN = filepath.Join(t.TempDir(), "history.db")

	a, err := newApp(cfg, nil, appOptions{ChangesFile: writeChanges(t), Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.pipeline.Deploy(context.Background(), "", "", true)
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)

	run, err := a.history.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OpDeploy, run.Operation)
	assert.Equal(t, store.RunStatusSucceeded, run.Status)
	assert.Len(t, run.Jobs, 2)
}

func TestNewApp_AbsoluteRegistryPath(t *testing.T) {
	repo := testRepo(t)
	cfg := testConfig(t, repo)
	cfg.Registry.Path = filepath.Join(repo, "config.yml")

	loader := registryLoader(cfg, nil)
	reg, err := loader.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"jobs failed", errJobsFailed, ExitJobFailed},
		{"source unavailable", fmt.Errorf("%w: exit status 128", git.ErrSourceUnavailable), ExitSourceUnavailable},
		{"registry unavailable", fmt.Errorf("%w: no such file", pipeline.ErrRegistryUnavailable), ExitConfigError},
		{"invalid registry", fmt.Errorf("config.yml: %w", shop.ErrInvalidRegistry), ExitConfigError},
		{"duplicate shop", shop.ErrDuplicateShop, ExitConfigError},
		{"ignore pattern", deployment.ErrInvalidIgnorePattern, ExitConfigError},
		{"shared theme root", fmt.Errorf("acme-theme: %w", deployment.ErrThemeRootConflict), ExitConfigError},
		{"invalid config", ErrInvalidConfig, ExitConfigError},
		{"server error", &ServerError{Op: "Start", Err: errors.New("bind"), ExitCode: ExitHTTPServerError}, ExitHTTPServerError},
		{"database error", &ServerError{Op: "OpenHistory", Err: store.ErrConnectionFailed, ExitCode: ExitDatabaseError}, ExitDatabaseError},
		{"anything else", errors.New("boom"), ExitJobFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// =============================================================================
// Output Tests
// =============================================================================

func TestPrintSummary_Table(t *testing.T) {
	s := &pipeline.Summary{
		Operation: pipeline.OpDeploy,
		RunID:     "run-1",
		Outcomes: []pipeline.Outcome{
			{Name: "acme/production", Kind: pipeline.KindDeploy, Files: []string{"a.liquid"}, Command: "theme deploy a.liquid"},
			{Name: "shop10/production", Kind: pipeline.KindDeploy, Err: errors.New("exit code 2\nstderr tail"), Duration: 1500 * time.Millisecond},
		},
		Unmatched: []string{"shop1/theme/x.liquid"},
	}
	var buf bytes.Buffer

	require.NoError(t, printSummary(&buf, s, FormatTable))

	out := buf.String()
	assert.Contains(t, out, "acme/production")
	assert.Contains(t, out, "theme deploy a.liquid")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "exit code 2")
	assert.NotContains(t, out, "stderr tail")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "unmatched: shop1/theme/x.liquid")
	assert.Contains(t, out, "run: run-1")
}

func TestPrintSummary_JSON(t *testing.T) {
	s := &pipeline.Summary{
		Operation: pipeline.OpLintAll,
		Outcomes: []pipeline.Outcome{
			{Name: "acme", Kind: pipeline.KindLint, ExitCode: 1, Err: errors.New("lint failed")},
		},
	}
	var buf bytes.Buffer

	require.NoError(t, printSummary(&buf, s, FormatJSON))

	out := buf.String()
	assert.Contains(t, out, `"operation": "lint-all"`)
	assert.Contains(t, out, `"exit_code": 1`)
	assert.Contains(t, out, `"error": "lint failed"`)
}

func TestPrintSummary_Empty(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printSummary(&buf, &pipeline.Summary{Operation: pipeline.OpDeploy}, FormatTable))

	assert.Equal(t, "plan-and-deploy: nothing to do\n", buf.String())
}

func TestPrintRuns(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []store.Run{
		{ID: "r1", Operation: pipeline.OpDeploy, Status: store.RunStatusFailed, ExitCode: 1, FromRev: "HEAD^", ToRev: "HEAD", StartedAt: started},
	}
	var buf bytes.Buffer

	require.NoError(t, printRuns(&buf, runs, FormatTable))
	assert.Contains(t, buf.String(), "r1")
	assert.Contains(t, buf.String(), "HEAD^..HEAD")

	buf.Reset()
	require.NoError(t, printRuns(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat(FormatTable))
	assert.NoError(t, checkFormat(FormatJSON))
	assert.ErrorIs(t, checkFormat("yaml"), ErrInvalidConfig)
}
