package deployment

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/artpar/shopdeploy/internal/core/changeset"
	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// Deployment Planning
// =============================================================================

// Plan maps changed files to deployment jobs.
//
// For every shop/environment pair, in registry order, a changed file belongs
// to the job when its first path segment equals the shop's merchant and its
// second segment equals the shop's theme directory. Matching is on whole
// segments, so "shop1" never claims files of "shop10". The job-relative path
// is what follows "<merchant>/<theme>/".
//
// Files matching one of the environment's ignore_files patterns are moved to
// Job.Ignored. A job is only emitted when at least one file remains.
// Files claimed by no shop are reported in PlanResult.Unmatched and are
// never an error. Two shops resolving to the same theme root are rejected
// with ErrThemeRootConflict before any job is planned.
//
// Example:
//
//	files := changeset.Extract("shops/acme/theme/assets/theme.css\n", "shops")
//	result, _ := Plan(files, registry, DefaultLayout())
//	// result.Jobs[0].Files == []string{"assets/theme.css"}
func Plan(files []changeset.ChangedFile, registry *shop.Registry, layout Layout) (PlanResult, error) {
	if err := layout.CheckThemeRoots(registry); err != nil {
		return PlanResult{}, err
	}

	var result PlanResult
	claimed := make([]bool, len(files))

	for _, target := range registry.Targets() {
		parts := target.Shop.Parts
		themeDir := parts.ThemeDir(layout.DefaultTheme)

		var matched []string
		for i, f := range files {
			if f.Shop != parts.Merchant || f.Theme != themeDir {
				continue
			}
			claimed[i] = true
			matched = append(matched, f.Rel)
		}
		matched = lo.Uniq(matched)
		if len(matched) == 0 {
			continue
		}

		kept, ignored, err := applyIgnore(matched, target.Environment.IgnoreFiles)
		if err != nil {
			return PlanResult{}, fmt.Errorf("%s/%s: %w", target.Shop.ID, target.Environment.Name, err)
		}
		if len(kept) == 0 {
			continue
		}

		result.Jobs = append(result.Jobs, Job{
			Shop:        target.Shop.ID,
			Environment: target.Environment,
			ThemeRoot:   layout.ThemeRoot(parts),
			Files:       kept,
			Ignored:     ignored,
		})
	}

	for i, f := range files {
		if !claimed[i] {
			result.Unmatched = append(result.Unmatched, f.Path)
		}
	}
	result.Unmatched = lo.Uniq(result.Unmatched)

	return result, nil
}

// applyIgnore splits files into kept and ignored, preserving order.
func applyIgnore(files []string, patterns []string) (kept, ignored []string, err error) {
	if len(patterns) == 0 {
		return files, nil, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidIgnorePattern, p)
		}
	}

	kept, ignored = lo.FilterReject(files, func(f string, _ int) bool {
		return !MatchIgnore(patterns, f)
	})
	return kept, ignored, nil
}

// MatchIgnore reports whether rel matches any pattern. Patterns without a
// slash match the base name anywhere in the tree ("*.png"); patterns with a
// slash match the whole theme-relative path ("config/settings_data.json",
// "assets/**/*.map"). Invalid patterns never match.
func MatchIgnore(patterns []string, rel string) bool {
	for _, p := range patterns {
		p = strings.TrimPrefix(p, "/")
		name := rel
		if !strings.Contains(p, "/") {
			name = path.Base(rel)
		}
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
