// Package configwriter writes each shop's deploy tool config.yml from the
// shop registry.
// This is part of the Imperative Shell - it reads and writes files; block
// rendering and merging live in internal/core/shopconfig.
package configwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/core/shop"
	"github.com/artpar/shopdeploy/internal/core/shopconfig"
)

// ErrMissingShopDirectory is returned for a shop whose theme directory does
// not exist. Only that shop is affected.
var ErrMissingShopDirectory = errors.New("shop theme directory does not exist")

// ShopResult is the outcome of writing one shop's config file.
type ShopResult struct {
	Shop shop.ID
	// Path is the repository-relative config file path.
	Path string
	// Environments lists the environment blocks written, in order.
	Environments []string
	Err          error
}

// Writer renders registry environments into per-shop config files.
type Writer struct {
	fs     afero.Fs
	layout deployment.Layout
	mode   shopconfig.Mode
	logger *slog.Logger
}

// New creates a Writer over fs. Paths are resolved relative to the root of fs;
// use afero.NewBasePathFs to anchor it at the repository root.
func New(fs afero.Fs, layout deployment.Layout, mode shopconfig.Mode, logger *slog.Logger) *Writer {
	if mode == "" {
		mode = shopconfig.ModeAppend
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		fs:     fs,
		layout: layout,
		mode:   mode,
		logger: logger.With("component", "config_writer"),
	}
}

// WriteAll writes every shop in registry order. Failures are recorded per
// shop and never stop the remaining shops. A shop whose theme directory an
// earlier shop already owns fails with deployment.ErrThemeRootConflict and
// its file is left to the owner.
func (w *Writer) WriteAll(ctx context.Context, reg *shop.Registry) []ShopResult {
	shops := reg.Shops()
	conflicts := w.layout.ThemeRootConflicts(reg)
	results := make([]ShopResult, 0, len(shops))
	for _, s := range shops {
		if err := ctx.Err(); err != nil {
			results = append(results, ShopResult{Shop: s.ID, Path: w.layout.ConfigPath(s.Parts), Err: err})
			continue
		}
		if owner, ok := conflicts[s.ID]; ok {
			res := ShopResult{Shop: s.ID, Path: w.layout.ConfigPath(s.Parts)}
			res.Err = fmt.Errorf("%w: %s is written by %s", deployment.ErrThemeRootConflict, res.Path, owner)
			w.logger.Error("failed to write config", "shop", s.ID, "path", res.Path, "error", res.Err)
			results = append(results, res)
			continue
		}
		results = append(results, w.WriteShop(s))
	}
	return results
}

// WriteShop merges every environment block of s into its config file.
func (w *Writer) WriteShop(s shop.Shop) ShopResult {
	dir := w.layout.ThemeRoot(s.Parts)
	res := ShopResult{Shop: s.ID, Path: w.layout.ConfigPath(s.Parts)}
	logger := w.logger.With("shop", s.ID, "path", res.Path)

	exists, err := afero.DirExists(w.fs, dir)
	if err != nil {
		res.Err = fmt.Errorf("stat %s: %w", dir, err)
		logger.Error("failed to write config", "error", res.Err)
		return res
	}
	if !exists {
		res.Err = fmt.Errorf("%w: %s", ErrMissingShopDirectory, dir)
		logger.Error("failed to write config", "error", res.Err)
		return res
	}

	content, err := afero.ReadFile(w.fs, res.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		res.Err = fmt.Errorf("read %s: %w", res.Path, err)
		logger.Error("failed to write config", "error", res.Err)
		return res
	}

	merged := string(content)
	for _, env := range s.Environments {
		merged, err = shopconfig.Merge(merged, env.Name, shopconfig.RenderBlock(env), w.mode)
		if err != nil {
			res.Err = err
			return res
		}
		res.Environments = append(res.Environments, env.Name)
	}

	if err := afero.WriteFile(w.fs, res.Path, []byte(merged), 0o644); err != nil {
		res.Err = fmt.Errorf("write %s: %w", res.Path, err)
		res.Environments = nil
		logger.Error("failed to write config", "error", res.Err)
		return res
	}

	logger.Info("wrote config", "environments", res.Environments, "mode", w.mode)
	return res
}
