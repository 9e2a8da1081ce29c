// Package shopconfig renders shop environments into the deploy tool's
// per-theme config.yml and merges new blocks into existing files.
// This is part of the Functional Core - all functions are pure with no I/O.
package shopconfig

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// Merge Modes
// =============================================================================

// Mode selects how a rendered block is combined with existing file content.
type Mode string

const (
	// ModeAppend always appends; re-running duplicates blocks.
	ModeAppend Mode = "append"
	// ModeReplace replaces the environment's existing block, or appends when absent.
	ModeReplace Mode = "replace"
)

// ErrUnknownMode is returned for a mode other than append or replace.
var ErrUnknownMode = errors.New("unknown config write mode")

// ParseMode validates a mode name. Empty selects ModeAppend.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// =============================================================================
// Rendering
// =============================================================================

var intPattern = regexp.MustCompile(`^-?[0-9]+$`)

// RenderBlock renders one environment block without a trailing newline:
//
//	production:
//	  password: $ACME_PASSWORD
//	  theme_id: 123
//	  store: acme.myshopify.com
//	  ignore_files:
//	    - '*.png'
func RenderBlock(env shop.Environment) string {
	var b strings.Builder
	b.WriteString(key(env.Name))
	b.WriteString(":")
	writeField(&b, "password", env.Password.Raw())
	writeField(&b, "theme_id", env.ThemeID)
	writeField(&b, "store", env.Store)
	for _, s := range env.Extra {
		writeField(&b, s.Key, s.Value)
	}
	if len(env.IgnoreFiles) > 0 {
		b.WriteString("\n  ignore_files:")
		for _, p := range env.IgnoreFiles {
			b.WriteString("\n    - ")
			b.WriteString(scalar(p))
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, k, v string) {
	b.WriteString("\n  ")
	b.WriteString(key(k))
	b.WriteString(": ")
	b.WriteString(scalar(v))
}

// scalar renders v as a YAML scalar, quoting only when YAML requires it.
// Integers stay plain so theme ids keep their numeric form.
func scalar(v string) string {
	if v == "" {
		return `""`
	}
	if intPattern.MatchString(v) {
		return v
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return strconv.Quote(v)
	}
	s := strings.TrimSuffix(string(out), "\n")
	if strings.Contains(s, "\n") {
		return strconv.Quote(v)
	}
	return s
}

func key(k string) string {
	if intPattern.MatchString(k) {
		return k
	}
	return scalar(k)
}

// =============================================================================
// Merging
// =============================================================================

// Merge combines existing file content with a rendered block for envName.
//
// ModeAppend keeps existing content and appends the block, so running twice
// with the same settings yields the block twice. ModeReplace substitutes the
// first top-level block keyed envName, drops any later duplicates of it, and
// appends when no such block exists.
func Merge(existing, envName, block string, mode Mode) (string, error) {
	switch mode {
	case ModeAppend, "":
		return appendBlock(existing, block), nil
	case ModeReplace:
		return replaceBlock(existing, envName, block), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func appendBlock(existing, block string) string {
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return existing + block + "\n"
}

func replaceBlock(existing, envName, block string) string {
	lines := strings.Split(existing, "\n")

	var out []string
	replaced := false
	skipping := false
	for _, line := range lines {
		if isTopLevel(line) {
			skipping = false
			if blockKey(line) == envName {
				skipping = true
				if !replaced {
					out = append(out, strings.Split(block, "\n")...)
					replaced = true
				}
				continue
			}
		}
		if skipping {
			continue
		}
		out = append(out, line)
	}

	if !replaced {
		return appendBlock(existing, block)
	}
	result := strings.Join(out, "\n")
	if !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}

func isTopLevel(line string) bool {
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	return line[0] != ' ' && line[0] != '\t' && line[0] != '-'
}

// blockKey returns the mapping key of a top-level line, unquoted.
func blockKey(line string) string {
	k, _, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	k = strings.TrimSpace(k)
	if len(k) >= 2 && (k[0] == '"' || k[0] == '\'') && k[len(k)-1] == k[0] {
		if k[0] == '"' {
			if u, err := strconv.Unquote(k); err == nil {
				return u
			}
		}
		return k[1 : len(k)-1]
	}
	return k
}
