package shop

import (
	"fmt"
	"strings"
)

// DefaultDelimiter separates the merchant and theme variant in a shop id.
const DefaultDelimiter = "-"

// DefaultTheme is the theme directory used by shop ids without a variant.
const DefaultTheme = "theme"

// ID identifies one deployable storefront theme, conventionally
// "<merchant>-<theme-variant>".
type ID string

// IDParts is the parsed form of an ID.
type IDParts struct {
	Merchant string
	// Variant is empty when the id carries no explicit theme variant.
	Variant string
}

// Parse splits the id on the first occurrence of delim.
//
// Examples:
//
//	ID("acme").Parse("-")          // {Merchant: "acme"}
//	ID("acme-dawn").Parse("-")     // {Merchant: "acme", Variant: "dawn"}
//	ID("acme-dawn-v2").Parse("-")  // {Merchant: "acme", Variant: "dawn-v2"}
func (id ID) Parse(delim string) (IDParts, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return IDParts{}, fmt.Errorf("%w: empty", ErrInvalidShopID)
	}
	if strings.ContainsAny(s, `/\`) {
		return IDParts{}, fmt.Errorf("%w: %q contains a path separator", ErrInvalidShopID, s)
	}
	if delim == "" {
		delim = DefaultDelimiter
	}

	merchant, variant, found := strings.Cut(s, delim)
	if merchant == "" {
		return IDParts{}, fmt.Errorf("%w: %q has no merchant", ErrInvalidShopID, s)
	}
	if found && variant == "" {
		return IDParts{}, fmt.Errorf("%w: %q has an empty theme variant", ErrInvalidShopID, s)
	}
	return IDParts{Merchant: merchant, Variant: variant}, nil
}

// ThemeDir returns the variant, or defaultTheme when the id has none.
func (p IDParts) ThemeDir(defaultTheme string) string {
	if p.Variant != "" {
		return p.Variant
	}
	if defaultTheme == "" {
		return DefaultTheme
	}
	return defaultTheme
}

func (id ID) String() string {
	return string(id)
}
