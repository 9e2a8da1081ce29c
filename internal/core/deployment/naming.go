package deployment

import (
	"fmt"
	"path"

	"github.com/artpar/shopdeploy/internal/core/changeset"
	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// Layout Functions
// =============================================================================

// ConfigFileName is the per-theme deploy tool configuration file.
const ConfigFileName = "config.yml"

// Layout describes where shop themes live in the repository.
type Layout struct {
	// ContentRoot is the directory holding one directory per merchant.
	ContentRoot string
	// DefaultTheme is the theme directory for shop ids without a variant.
	DefaultTheme string
}

// DefaultLayout returns the layout used by the original shops repository.
func DefaultLayout() Layout {
	return Layout{
		ContentRoot:  changeset.DefaultContentRoot,
		DefaultTheme: shop.DefaultTheme,
	}
}

func (l Layout) root() string {
	if l.ContentRoot == "" {
		return changeset.DefaultContentRoot
	}
	return l.ContentRoot
}

// ThemeRoot returns the repository-relative theme directory of a shop.
// Pattern: {contentRoot}/{merchant}/{variant}
//
// Example:
//
//	DefaultLayout().ThemeRoot(shop.IDParts{Merchant: "acme"})                  // "shops/acme/theme"
//	DefaultLayout().ThemeRoot(shop.IDParts{Merchant: "acme", Variant: "dawn"}) // "shops/acme/dawn"
func (l Layout) ThemeRoot(parts shop.IDParts) string {
	return path.Join(l.root(), parts.Merchant, parts.ThemeDir(l.DefaultTheme))
}

// ConfigPath returns the deploy tool config file of a shop.
// Pattern: {contentRoot}/{merchant}/{variant}/config.yml
func (l Layout) ConfigPath(parts shop.IDParts) string {
	return path.Join(l.ThemeRoot(parts), ConfigFileName)
}

// LintDir returns the directory handed to the theme lint tool.
// Pattern: {contentRoot}/{merchant}/{variant}/
func (l Layout) LintDir(parts shop.IDParts) string {
	return l.ThemeRoot(parts) + "/"
}

// ThemeRootConflicts maps every shop whose theme root is already owned by an
// earlier registry entry to that owner.
//
// Example:
//
//	// registry: acme, acme-theme
//	DefaultLayout().ThemeRootConflicts(registry) // {"acme-theme": "acme"}
func (l Layout) ThemeRootConflicts(registry *shop.Registry) map[shop.ID]shop.ID {
	owners := make(map[string]shop.ID, registry.Len())
	conflicts := make(map[shop.ID]shop.ID)
	for _, s := range registry.Shops() {
		root := l.ThemeRoot(s.Parts)
		if owner, ok := owners[root]; ok {
			conflicts[s.ID] = owner
			continue
		}
		owners[root] = s.ID
	}
	return conflicts
}

// CheckThemeRoots returns ErrThemeRootConflict for the first shop, in
// registry order, whose theme root another shop already owns.
func (l Layout) CheckThemeRoots(registry *shop.Registry) error {
	conflicts := l.ThemeRootConflicts(registry)
	for _, s := range registry.Shops() {
		if owner, ok := conflicts[s.ID]; ok {
			return fmt.Errorf("%w: %s and %s both resolve to %s",
				ErrThemeRootConflict, owner, s.ID, l.ThemeRoot(s.Parts))
		}
	}
	return nil
}
