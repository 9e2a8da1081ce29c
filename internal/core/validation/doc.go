// Package validation provides pure validation functions for request inputs.
//
// All functions are pure (no I/O, no side effects). They return the offending
// field and a message instead of an error so callers can map them to their
// own error shapes (HTTP 400, CLI config error).
//
// # Functions
//
//   - ValidateRevision: Check one revision argument handed to git
//   - ValidateRevisions: Check a from/to pair, reporting the first bad field
//   - CanDeploy: Check whether a deploy may start while another is running
//
// # Usage
//
//	if field, msg := validation.ValidateRevisions(req.From, req.To); field != "" {
//	    // Return 400 Bad Request with msg
//	}
package validation
