package deployment

import (
	"errors"

	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// Job Types
// =============================================================================

// Job is one shop/environment that must be redeployed.
// This is the pure output of planning, ready for the shell to execute.
// Files is never empty.
type Job struct {
	Shop        shop.ID
	Environment shop.Environment
	// ThemeRoot is the repository-relative working directory of the deploy tool.
	ThemeRoot string
	// Files are theme-root-relative paths in first-seen order, without duplicates.
	Files []string
	// Ignored are matched files excluded by the environment's ignore_files.
	Ignored []string
}

// Name returns "<shop>/<environment>".
func (j Job) Name() string {
	return string(j.Shop) + "/" + j.Environment.Name
}

// PlanResult is the outcome of planning one change set.
type PlanResult struct {
	// Jobs in registry iteration order.
	Jobs []Job
	// Unmatched lists content-root-relative paths no configured shop claimed.
	// They are informational only.
	Unmatched []string
}

// =============================================================================
// Error Types
// =============================================================================

// ErrInvalidIgnorePattern is returned when an ignore_files entry is not a valid glob.
var ErrInvalidIgnorePattern = errors.New("invalid ignore_files pattern")

// ErrThemeRootConflict is returned when two shop ids resolve to the same
// theme directory, e.g. "acme" and "acme-theme" under the default theme.
var ErrThemeRootConflict = errors.New("shops share a theme directory")
