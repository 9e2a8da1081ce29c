package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shopdeploy/internal/core/command"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// =============================================================================
// ExecExecutor Tests
// =============================================================================

func TestExecExecutor_Success(t *testing.T) {
	requireShell(t)
	e, err := NewExecExecutor(t.TempDir(), "", nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{Program: "sh", Args: []string{"-c", "echo hello"}})

	assert.False(t, res.Failed())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestExecExecutor_NonZeroExit(t *testing.T) {
	requireShell(t)
	e, err := NewExecExecutor(t.TempDir(), "", nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{Program: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})

	assert.True(t, res.Failed())
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom", res.Stderr)
	assert.NoError(t, res.Err)
}

func TestExecExecutor_SpawnFailure(t *testing.T) {
	e, err := NewExecExecutor(t.TempDir(), "", nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{Program: "shopdeploy-no-such-tool"})

	assert.True(t, res.Failed())
	assert.Equal(t, -1, res.ExitCode)
	assert.Error(t, res.Err)
}

func TestExecExecutor_RunsInInvocationDir(t *testing.T) {
	requireShell(t)
	base := t.TempDir()
	themeRoot := filepath.Join(base, "shops", "acme", "theme")
	require.NoError(t, os.MkdirAll(themeRoot, 0o755))
	e, err := NewExecExecutor(base, "", nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{
		Program: "sh",
		Args:    []string{"-c", "pwd"},
		Dir:     "shops/acme/theme",
	})

	require.False(t, res.Failed())
	resolved, err := filepath.EvalSymlinks(themeRoot)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}

func TestExecExecutor_MissingDirIsSpawnFailure(t *testing.T) {
	requireShell(t)
	e, err := NewExecExecutor(t.TempDir(), "", nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{Program: "sh", Args: []string{"-c", "true"}, Dir: "missing"})

	assert.True(t, res.Failed())
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecExecutor_EnvFile(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ACME_PASSWORD=s3cret\n"), 0o600))

	e, err := NewExecExecutor(dir, envFile, nil)
	require.NoError(t, err)

	res := e.Run(context.Background(), command.Invocation{
		Program: "sh",
		Args:    []string{"-c", "echo $ACME_PASSWORD $EXTRA"},
		Env:     []string{"EXTRA=x"},
	})

	require.False(t, res.Failed())
	assert.Equal(t, "s3cret x\n", res.Stdout)
}

func TestNewExecExecutor_MissingEnvFile(t *testing.T) {
	_, err := NewExecExecutor(t.TempDir(), filepath.Join(t.TempDir(), "nope.env"), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvFile))
}

func TestLoadEnvFile_Sorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("B=2\nA=1\n# comment\n"), 0o600))

	env, err := LoadEnvFile(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=2"}, env)
}

// =============================================================================
// CommandError Tests
// =============================================================================

func TestCommandError_TruncatesStderr(t *testing.T) {
	long := strings.Repeat("x", stderrTail+100)

	err := NewCommandError("acme/production", Result{ExitCode: 1, Stderr: long})

	assert.True(t, strings.HasPrefix(err.Stderr, "..."))
	assert.Len(t, err.Stderr, stderrTail+3)
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Contains(t, err.Error(), "acme/production: exit code 1")
}

func TestCommandError_UnwrapsCause(t *testing.T) {
	cause := errors.New("start failed")

	err := NewCommandError("acme/production", Result{ExitCode: -1, Err: cause})

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrCommandFailed))
}
