// Package deployment provides pure functions for change-driven deployment planning.
//
// This package contains the functional core logic for turning a set of
// changed theme files into per-shop deployment jobs. All functions are pure
// (no I/O, no side effects).
//
// # Functions
//
//   - Layout: Derive theme roots and config paths (ThemeRoot, ConfigPath)
//   - Planning: Map changed files to shop/environment jobs (Plan)
//   - Ignoring: Apply per-environment ignore_files patterns (MatchIgnore)
//
// # Usage
//
// The pipeline (internal/pipeline) extracts changed files, plans jobs with
// these pure functions, then hands each job to the command dispatcher.
//
//	files := changeset.Extract(raw, layout.ContentRoot)
//	result, err := deployment.Plan(files, registry, layout)
//	for _, job := range result.Jobs {
//	    inv := command.Deploy(job, tool)
//	}
package deployment
