// Package changeset turns raw "files changed between two revisions" output
// into content-root-relative paths that can be attributed to shops.
// This is part of the Functional Core - all functions are pure with no I/O.
package changeset

import (
	"strings"
)

// DefaultContentRoot is the directory holding one subdirectory per shop.
const DefaultContentRoot = "shops"

// ChangedFile is one changed path under the content root.
//
// For "shops/acme/theme/assets/theme.css" with content root "shops":
//
//	Path:  "acme/theme/assets/theme.css"
//	Shop:  "acme"
//	Theme: "theme"
//	Rel:   "assets/theme.css"
type ChangedFile struct {
	Path  string
	Shop  string
	Theme string
	// Rel is the path below the shop/theme directories. For a two-segment
	// path ("acme/README.md") Theme is empty and Rel is the file name.
	Rel string
}

// Segments returns the number of path segments in Path.
func (f ChangedFile) Segments() int {
	return strings.Count(f.Path, "/") + 1
}

// Extract parses newline-delimited revision diff output.
//
// Lines are kept in input order; a trailing empty line is dropped, lines
// outside "<contentRoot>/" are dropped, the prefix is stripped, and paths
// with fewer than two segments after the prefix are discarded because they
// cannot be attributed to a shop. Duplicates are kept.
//
// Example:
//
//	Extract("shops/acme/theme/config.yml\npackage.json\n", "shops")
//	// []ChangedFile{{Path: "acme/theme/config.yml", Shop: "acme", Theme: "theme", Rel: "config.yml"}}
func Extract(raw string, contentRoot string) []ChangedFile {
	prefix := normalizeRoot(contentRoot) + "/"

	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && strings.TrimRight(lines[n-1], "\r") == "" {
		lines = lines[:n-1]
	}

	files := make([]ChangedFile, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		f, ok := newChangedFile(strings.TrimPrefix(line, prefix))
		if !ok {
			continue
		}
		files = append(files, f)
	}
	return files
}

// Paths returns the Path of each file, in order.
func Paths(files []ChangedFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func newChangedFile(path string) (ChangedFile, bool) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return ChangedFile{}, false
	}
	for _, s := range segments {
		if s == "" {
			return ChangedFile{}, false
		}
	}

	f := ChangedFile{Path: path, Shop: segments[0]}
	if len(segments) == 2 {
		f.Rel = segments[1]
		return f, true
	}
	f.Theme = segments[1]
	f.Rel = strings.Join(segments[2:], "/")
	return f, true
}

func normalizeRoot(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return DefaultContentRoot
	}
	return root
}
