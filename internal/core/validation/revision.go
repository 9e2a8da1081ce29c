package validation

import (
	"strings"
	"unicode"
)

// MaxRevisionLength bounds a revision argument.
const MaxRevisionLength = 256

// =============================================================================
// Revision Validation Functions
// =============================================================================

// ValidateRevision checks a revision passed to `git diff`. Empty is valid and
// means the configured default. Returns a message if the revision is invalid,
// or "" if it is valid.
//
// A leading "-" would be read as a git option, so it is rejected.
//
// Example:
//
//	ValidateRevision("HEAD~3")       // ""
//	ValidateRevision("--output=/x")  // "must not start with '-'"
func ValidateRevision(rev string) string {
	if rev == "" {
		return ""
	}
	if len(rev) > MaxRevisionLength {
		return "must be at most 256 characters"
	}
	if strings.HasPrefix(rev, "-") {
		return "must not start with '-'"
	}
	if strings.Contains(rev, "..") {
		return "must be a single revision, not a range"
	}
	for _, r := range rev {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "must not contain whitespace or control characters"
		}
	}
	return ""
}

// ValidateRevisions validates a from/to pair.
// Returns the field name and error message of the first invalid revision.
// Returns empty strings if both are valid.
//
// Example:
//
//	field, msg := ValidateRevisions("HEAD^", "-p")
//	// field == "to", msg == "to must not start with '-'"
func ValidateRevisions(from, to string) (field, message string) {
	if msg := ValidateRevision(from); msg != "" {
		return "from", "from " + msg
	}
	if msg := ValidateRevision(to); msg != "" {
		return "to", "to " + msg
	}
	return "", ""
}

// CanDeploy checks if a deploy can start given whether one is already running.
// Returns whether the deploy is allowed and an optional reason if not.
//
// Example:
//
//	allowed, reason := CanDeploy(running)
//	if !allowed {
//	    // Return 409 Conflict with reason
//	}
func CanDeploy(running bool) (allowed bool, reason string) {
	if running {
		return false, "a deployment is already running"
	}
	return true, ""
}
