package pipeline

import (
	"errors"
	"time"

	"github.com/samber/lo"
)

// Operation names, also used as run history labels.
const (
	OpExtractChanges = "extract-changes"
	OpDeploy         = "plan-and-deploy"
	OpWriteConfigs   = "write-configs"
	OpLintAll        = "lint-all"
)

// Job kinds reported in outcomes.
const (
	KindDeploy = "deploy"
	KindLint   = "lint"
	KindConfig = "config"
)

// Outcome is the result of one unit of work: a deploy job, a lint run or a
// config file write.
type Outcome struct {
	Name        string        `json:"name"`
	Kind        string        `json:"kind"`
	Shop        string        `json:"shop"`
	Environment string        `json:"environment,omitempty"`
	Files       []string      `json:"files,omitempty"`
	Command     string        `json:"command,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
	// Skipped is set for dry runs; the command was built but not executed.
	Skipped bool `json:"skipped,omitempty"`
}

// Failed reports whether this outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Error returns the failure message, or "".
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Summary collects the outcomes of one pipeline operation.
type Summary struct {
	// RunID is the history id, empty when history is disabled.
	RunID     string    `json:"run_id,omitempty"`
	Operation string    `json:"operation"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Outcomes  []Outcome `json:"outcomes"`
	// Unmatched lists changed files no shop claimed. Informational only.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Failed reports whether any outcome failed.
func (s *Summary) Failed() bool {
	return lo.SomeBy(s.Outcomes, Outcome.Failed)
}

// Failures returns the failed outcomes.
func (s *Summary) Failures() []Outcome {
	return lo.Filter(s.Outcomes, func(o Outcome, _ int) bool { return o.Failed() })
}

// ExitCode is the logical OR of all outcomes: 1 if any failed, else 0.
func (s *Summary) ExitCode() int {
	if s.Failed() {
		return 1
	}
	return 0
}

// Err joins the failure errors, or returns nil.
func (s *Summary) Err() error {
	return errors.Join(lo.Map(s.Failures(), func(o Outcome, _ int) error { return o.Err })...)
}
