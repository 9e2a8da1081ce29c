package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artpar/shopdeploy/internal/core/shop"
)

// =============================================================================
// ThemeRoot Tests
// =============================================================================

func TestThemeRoot_DefaultTheme(t *testing.T) {
	got := DefaultLayout().ThemeRoot(shop.IDParts{Merchant: "acme"})
	assert.Equal(t, "shops/acme/theme", got)
}

func TestThemeRoot_Variant(t *testing.T) {
	got := DefaultLayout().ThemeRoot(shop.IDParts{Merchant: "acme", Variant: "dawn"})
	assert.Equal(t, "shops/acme/dawn", got)
}

func TestThemeRoot_CustomLayout(t *testing.T) {
	l := Layout{ContentRoot: "stores", DefaultTheme: "src"}
	assert.Equal(t, "stores/massiveshops/src", l.ThemeRoot(shop.IDParts{Merchant: "massiveshops"}))
}

func TestThemeRoot_ZeroLayout(t *testing.T) {
	var l Layout
	assert.Equal(t, "shops/acme/theme", l.ThemeRoot(shop.IDParts{Merchant: "acme"}))
}

// =============================================================================
// ConfigPath / LintDir Tests
// =============================================================================

func TestConfigPath(t *testing.T) {
	got := DefaultLayout().ConfigPath(shop.IDParts{Merchant: "acme", Variant: "dawn"})
	assert.Equal(t, "shops/acme/dawn/config.yml", got)
}

func TestLintDir_TrailingSlash(t *testing.T) {
	got := DefaultLayout().LintDir(shop.IDParts{Merchant: "shop1"})
	assert.Equal(t, "shops/shop1/theme/", got)
}

// =============================================================================
// MatchIgnore Tests
// =============================================================================

func TestMatchIgnore(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		rel      string
		want     bool
	}{
		{name: "basename glob", patterns: []string{"*.png"}, rel: "assets/img/logo.png", want: true},
		{name: "basename glob miss", patterns: []string{"*.png"}, rel: "assets/logo.svg", want: false},
		{name: "exact path", patterns: []string{"config/settings_data.json"}, rel: "config/settings_data.json", want: true},
		{name: "path glob does not match basename", patterns: []string{"config/*.json"}, rel: "locales/en.json", want: false},
		{name: "doublestar", patterns: []string{"assets/**/*.map"}, rel: "assets/js/vendor/app.js.map", want: true},
		{name: "leading slash", patterns: []string{"/config/settings_data.json"}, rel: "config/settings_data.json", want: true},
		{name: "no patterns", patterns: nil, rel: "a.liquid", want: false},
		{name: "invalid pattern never matches", patterns: []string{"[unclosed"}, rel: "[unclosed", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchIgnore(tt.patterns, tt.rel))
		})
	}
}

// =============================================================================
// Theme Root Conflict Tests
// =============================================================================

func TestThemeRootConflicts(t *testing.T) {
	reg := testRegistry(t, `
acme:
  production:
    theme_id: 1
acme-dawn:
  production:
    theme_id: 2
acme-src:
  production:
    theme_id: 3
acme-theme:
  production:
    theme_id: 4
`)

	tests := []struct {
		name   string
		layout Layout
		want   map[shop.ID]shop.ID
	}{
		{"default theme", DefaultLayout(), map[shop.ID]shop.ID{"acme-theme": "acme"}},
		{"custom default theme", Layout{ContentRoot: "shops", DefaultTheme: "src"}, map[shop.ID]shop.ID{"acme-src": "acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.ThemeRootConflicts(reg))
			assert.ErrorIs(t, tt.layout.CheckThemeRoots(reg), ErrThemeRootConflict)
		})
	}
}

func TestCheckThemeRoots_DistinctRoots(t *testing.T) {
	reg := testRegistry(t, "acme:\n  production:\n    theme_id: 1\nacme-dawn:\n  production:\n    theme_id: 2\n")

	assert.NoError(t, DefaultLayout().CheckThemeRoots(reg))
	assert.Empty(t, DefaultLayout().ThemeRootConflicts(reg))
}
