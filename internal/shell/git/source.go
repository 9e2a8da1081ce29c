// Package git provides the revision-diff sources feeding the change-set
// extractor. This is part of the Imperative Shell - it runs git or reads
// repositories; parsing happens in internal/core/changeset.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// =============================================================================
// Errors
// =============================================================================

// ErrSourceUnavailable is returned when the list of changed files cannot be
// produced. It is fatal for a pipeline run.
var ErrSourceUnavailable = errors.New("changed file source unavailable")

// Default revisions compared when none are given: the last commit.
const (
	DefaultFrom = "HEAD^"
	DefaultTo   = "HEAD"
)

// Source produces newline-delimited repository-relative paths that differ
// between two revisions.
type Source interface {
	ChangedFiles(ctx context.Context, from, to string) (string, error)
}

func revisions(from, to string) (string, string) {
	if from == "" {
		from = DefaultFrom
	}
	if to == "" {
		to = DefaultTo
	}
	return from, to
}

// =============================================================================
// CLISource
// =============================================================================

// CLISource runs `git diff --name-only -z <from> <to>`. Paths are read
// NUL-terminated so names with non-ASCII bytes are never C-quoted.
type CLISource struct {
	// RepoDir is the working directory for git. Empty means the current directory.
	RepoDir string
	// Program is the git binary. Empty means "git".
	Program string
	Logger  *slog.Logger
}

// ChangedFiles returns the changed paths, one per line.
func (s *CLISource) ChangedFiles(ctx context.Context, from, to string) (string, error) {
	from, to = revisions(from, to)
	program := s.Program
	if program == "" {
		program = "git"
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, program,
		"-c", "core.quotePath=false", "diff", "--name-only", "-z", from, to)
	cmd.Dir = s.RepoDir
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("listing changed files", "from", from, "to", to, "repo", s.RepoDir)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: git diff %s %s: %w: %s",
			ErrSourceUnavailable, from, to, err, strings.TrimSpace(stderr.String()))
	}
	return nulToLines(string(out)), nil
}

// nulToLines converts NUL-terminated paths to newline-terminated ones.
func nulToLines(out string) string {
	paths := strings.Split(strings.TrimSuffix(out, "\x00"), "\x00")
	if len(paths) == 1 && paths[0] == "" {
		return ""
	}
	return strings.Join(paths, "\n") + "\n"
}

// =============================================================================
// RepoSource
// =============================================================================

// RepoSource diffs two commits in-process with go-git.
type RepoSource struct {
	// RepoDir is any path inside the repository. Empty means the current directory.
	RepoDir string
	Logger  *slog.Logger
}

// ChangedFiles resolves both revisions, diffs their trees and returns the
// changed paths sorted, one per line, in `git diff --name-only` form.
// Renames are reported as the removed and the added path.
func (s *RepoSource) ChangedFiles(ctx context.Context, from, to string) (string, error) {
	from, to = revisions(from, to)
	dir := s.RepoDir
	if dir == "" {
		dir = "."
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: open repository %s: %w", ErrSourceUnavailable, dir, err)
	}

	fromTree, err := resolveTree(repo, from)
	if err != nil {
		return "", err
	}
	toTree, err := resolveTree(repo, to)
	if err != nil {
		return "", err
	}

	logger.Debug("diffing commit trees", "from", from, "to", to)
	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, &object.DiffTreeOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: diff %s %s: %w", ErrSourceUnavailable, from, to, err)
	}

	seen := make(map[string]bool, len(changes)*2)
	var paths []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			paths = append(paths, name)
		}
	}
	for _, c := range changes {
		add(c.From.Name)
		add(c.To.Name)
	}
	sort.Strings(paths)
	logger.Debug("found changed files", "count", len(paths))

	if len(paths) == 0 {
		return "", nil
	}
	return strings.Join(paths, "\n") + "\n", nil
}

func resolveTree(repo *gogit.Repository, rev string) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrSourceUnavailable, rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s: %w", ErrSourceUnavailable, rev, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree of %s: %w", ErrSourceUnavailable, rev, err)
	}
	return tree, nil
}

// =============================================================================
// StaticSource
// =============================================================================

// StaticSource returns pre-captured diff output, e.g. read from a file or stdin.
type StaticSource struct {
	Text string
}

// ChangedFiles ignores the revisions and returns Text.
func (s StaticSource) ChangedFiles(ctx context.Context, from, to string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return s.Text, nil
}

// NewSource selects a source by kind: "cli" (default) or "gogit".
func NewSource(kind, repoDir string, logger *slog.Logger) (Source, error) {
	switch strings.ToLower(kind) {
	case "", "cli":
		return &CLISource{RepoDir: repoDir, Logger: logger}, nil
	case "gogit", "go-git":
		return &RepoSource{RepoDir: repoDir, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q (want cli or gogit)", kind)
	}
}
