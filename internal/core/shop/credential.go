package shop

import (
	"log/slog"
	"regexp"
)

// =============================================================================
// Credentials
// =============================================================================

// envRefRegex matches a whole-value environment variable reference: $VAR or ${VAR}.
// Groups:
//   - Group 1: Variable name in braced form
//   - Group 2: Variable name in bare form
var envRefRegex = regexp.MustCompile(`^(?:\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*))$`)

// Credential is a theme access password. It is either a literal secret or a
// reference to an environment variable that only the external deploy tool
// resolves.
type Credential struct {
	raw string
	ref string
}

// ParseCredential classifies raw as a literal secret or an environment reference.
//
// Examples:
//
//	ParseCredential("${THEMEKIT_PASSWORD}").Reference() // "THEMEKIT_PASSWORD", true
//	ParseCredential("$SHOP_TOKEN").Reference()          // "SHOP_TOKEN", true
//	ParseCredential("shppa_123").Reference()            // "", false
func ParseCredential(raw string) Credential {
	c := Credential{raw: raw}
	if m := envRefRegex.FindStringSubmatch(raw); m != nil {
		c.ref = m[1]
		if c.ref == "" {
			c.ref = m[2]
		}
	}
	return c
}

// Reference returns the referenced variable name when the credential is a reference.
func (c Credential) Reference() (string, bool) {
	return c.ref, c.ref != ""
}

// IsReference reports whether the credential names an environment variable.
func (c Credential) IsReference() bool {
	return c.ref != ""
}

// IsZero reports whether no password was configured.
func (c Credential) IsZero() bool {
	return c.raw == ""
}

// Raw returns the value exactly as configured. References keep their $ form.
func (c Credential) Raw() string {
	return c.raw
}

// String never reveals a literal secret.
func (c Credential) String() string {
	switch {
	case c.raw == "":
		return ""
	case c.ref != "":
		return c.raw
	default:
		return "[redacted]"
	}
}

// LogValue implements slog.LogValuer so literal secrets never reach logs.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
