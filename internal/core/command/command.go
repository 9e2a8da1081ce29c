// Package command builds external tool invocations for deploy and lint jobs.
// This is part of the Functional Core - invocations are plain values; the
// shell (internal/shell/runner) executes them.
package command

import (
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// Invocation
// =============================================================================

// Invocation describes one external process.
type Invocation struct {
	Program string
	Args    []string
	// Dir is the working directory, relative to the repository root.
	// Empty means the repository root.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the parent environment.
	Env []string
}

// String renders the invocation as a shell line, for logs and dry runs.
//
// Example:
//
//	cd shops/acme/theme && theme deploy assets/theme.css --allow-live --env=production
func (i Invocation) String() string {
	line := shellescape.QuoteCommand(append([]string{i.Program}, i.Args...))
	if i.Dir == "" {
		return line
	}
	return "cd " + shellescape.Quote(i.Dir) + " && " + line
}

// =============================================================================
// Tools
// =============================================================================

// DeployTool configures the theme upload CLI.
type DeployTool struct {
	Program string
	// Subcommand precedes the file list, e.g. ["deploy"].
	Subcommand []string
	// Flags follow the file list; they must suppress interactive confirmation.
	Flags []string
	// EnvFlag names the flag selecting the environment block of config.yml.
	EnvFlag string
}

// DefaultDeployTool returns the Theme Kit defaults.
func DefaultDeployTool() DeployTool {
	return DeployTool{
		Program:    "theme",
		Subcommand: []string{"deploy"},
		Flags:      []string{"--allow-live"},
		EnvFlag:    "--env",
	}
}

// LintTool configures the theme lint CLI.
type LintTool struct {
	Program string
	Args    []string
}

// DefaultLintTool returns the theme-lint defaults.
func DefaultLintTool() LintTool {
	return LintTool{Program: "./node_modules/.bin/theme-lint"}
}

// =============================================================================
// Builders
// =============================================================================

// Deploy builds the upload invocation for a job: run from the job's theme
// root, pass the changed files, the no-confirmation flags and the environment.
//
// Example:
//
//	Deploy(Job{ThemeRoot: "shops/acme/theme", Files: ["a.liquid"], Environment: {Name: "production"}}, DefaultDeployTool())
//	// Dir: "shops/acme/theme", Program: "theme", Args: ["deploy", "a.liquid", "--allow-live", "--env=production"]
func Deploy(job deployment.Job, tool DeployTool) Invocation {
	args := make([]string, 0, len(tool.Subcommand)+len(job.Files)+len(tool.Flags)+1)
	args = append(args, tool.Subcommand...)
	args = append(args, job.Files...)
	args = append(args, tool.Flags...)
	args = append(args, envArg(tool.EnvFlag, job.Environment.Name)...)

	return Invocation{
		Program: tool.Program,
		Args:    args,
		Dir:     job.ThemeRoot,
	}
}

// Lint builds the lint invocation for a shop's theme directory, run from the
// repository root.
func Lint(layout deployment.Layout, parts shop.IDParts, tool LintTool) Invocation {
	args := append(append([]string(nil), tool.Args...), layout.LintDir(parts))
	return Invocation{
		Program: tool.Program,
		Args:    args,
	}
}

func envArg(flag, env string) []string {
	if flag == "" {
		flag = "--env"
	}
	if strings.HasSuffix(flag, "=") {
		return []string{flag + env}
	}
	if strings.HasPrefix(flag, "--") {
		return []string{flag + "=" + env}
	}
	return []string{flag, env}
}
