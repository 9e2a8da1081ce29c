// Package shop holds the shop registry: shop identifiers, per-environment
// deployment settings and the ordered registry parsed from config.yml.
// This is part of the Functional Core - all functions are pure with no I/O.
package shop

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidShopID is returned for an empty or malformed shop identifier.
	ErrInvalidShopID = errors.New("invalid shop id")

	// ErrInvalidRegistry is returned when the registry document has the wrong shape.
	ErrInvalidRegistry = errors.New("invalid shop registry")

	// ErrDuplicateShop is returned when a shop id appears twice.
	ErrDuplicateShop = errors.New("duplicate shop id")

	// ErrDuplicateEnvironment is returned when a shop defines an environment twice.
	ErrDuplicateEnvironment = errors.New("duplicate environment")
)

// ParseError wraps errors with context about where registry parsing failed.
type ParseError struct {
	Field   string // e.g., "acme-dawn.production.theme_id"
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	prefix := ""
	if e.Line > 0 {
		prefix = fmt.Sprintf("line %d: ", e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s%s: %s", prefix, e.Field, e.Message)
	}
	return prefix + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field string, line int, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Line:    line,
		Message: message,
		Err:     err,
	}
}
