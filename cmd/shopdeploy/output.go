package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/artpar/shopdeploy/internal/core/changeset"
	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// Output formats accepted by --format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 2, 0, 0)
	cellStyle   = lipgloss.NewStyle().Padding(0, 2, 0, 0)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Padding(0, 2, 0, 0)
)

func checkFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON:
		return nil
	default:
		return fmt.Errorf("%w: --format %q (want table or json)", ErrInvalidConfig, format)
	}
}

func newTable(headers []string, rows [][]string, failed func(row int) bool) *table.Table {
	return table.New().
		Headers(headers...).
		Rows(rows...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderRow(false).
		BorderColumn(false).
		BorderHeader(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if failed != nil && failed(row) {
				return failStyle
			}
			return cellStyle
		})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// Changes
// =============================================================================

func printChanges(w io.Writer, files []changeset.ChangedFile, format string) error {
	if format == FormatJSON {
		return writeJSON(w, changeset.Paths(files))
	}
	for _, f := range files {
		fmt.Fprintln(w, f.Path)
	}
	return nil
}

// =============================================================================
// Summary
// =============================================================================

type summaryJSON struct {
	*pipeline.Summary
	Outcomes []outcomeJSON `json:"outcomes"`
	ExitCode int           `json:"exit_code"`
}

type outcomeJSON struct {
	pipeline.Outcome
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func printSummary(w io.Writer, s *pipeline.Summary, format string) error {
	if format == FormatJSON {
		out := summaryJSON{Summary: s, ExitCode: s.ExitCode(), Outcomes: make([]outcomeJSON, 0, len(s.Outcomes))}
		for _, o := range s.Outcomes {
			out.Outcomes = append(out.Outcomes, outcomeJSON{Outcome: o, Duration: o.Duration.String(), Error: o.Error()})
		}
		return writeJSON(w, out)
	}

	if len(s.Outcomes) == 0 {
		fmt.Fprintf(w, "%s: nothing to do\n", s.Operation)
	} else {
		rows := make([][]string, 0, len(s.Outcomes))
		for _, o := range s.Outcomes {
			rows = append(rows, []string{o.Name, o.Kind, outcomeStatus(o), strconv.Itoa(len(o.Files)), formatDuration(o.Duration), detail(o)})
		}
		t := newTable([]string{"JOB", "KIND", "STATUS", "FILES", "DURATION", "DETAIL"}, rows, func(row int) bool {
			return s.Outcomes[row].Failed()
		})
		fmt.Fprintln(w, t.String())
	}

	for _, path := range s.Unmatched {
		fmt.Fprintf(w, "unmatched: %s\n", path)
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "run: %s\n", s.RunID)
	}
	return nil
}

func outcomeStatus(o pipeline.Outcome) string {
	switch {
	case o.Failed():
		return "failed"
	case o.Skipped:
		return "dry-run"
	default:
		return "ok"
	}
}

func detail(o pipeline.Outcome) string {
	if o.Failed() {
		return firstLine(o.Error())
	}
	return o.Command
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// =============================================================================
// History
// =============================================================================

func printRuns(w io.Writer, runs []store.Run, format string) error {
	if format == FormatJSON {
		if runs == nil {
			runs = []store.Run{}
		}
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		rows = append(rows, []string{
			r.ID,
			r.Operation,
			string(r.Status),
			strconv.Itoa(r.ExitCode),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			revRange(r),
		})
	}
	t := newTable([]string{"ID", "OPERATION", "STATUS", "EXIT", "STARTED", "REVISIONS"}, rows, func(row int) bool {
		return runs[row].Status == store.RunStatusFailed
	})
	fmt.Fprintln(w, t.String())
	return nil
}

func printRun(w io.Writer, r *store.Run, format string) error {
	if format == FormatJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "run:       %s\n", r.ID)
	fmt.Fprintf(w, "operation: %s\n", r.Operation)
	fmt.Fprintf(w, "status:    %s (exit %d)\n", r.Status, r.ExitCode)
	if rev := revRange(r); rev != "" {
		fmt.Fprintf(w, "revisions: %s\n", rev)
	}
	if r.DryRun {
		fmt.Fprintln(w, "dry run:   yes")
	}
	fmt.Fprintf(w, "started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "finished:  %s\n", r.FinishedAt.Local().Format(time.RFC3339))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error:     %s\n", firstLine(r.Error))
	}
	if len(r.Jobs) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		status := "ok"
		if !j.Succeeded() {
			status = "failed"
		}
		rows = append(rows, []string{j.Name, j.Kind, status, strconv.Itoa(j.ExitCode), formatDuration(j.Duration), firstLine(j.Error)})
	}
	t := newTable([]string{"JOB", "KIND", "STATUS", "EXIT", "DURATION", "ERROR"}, rows, func(row int) bool {
		return !r.Jobs[row].Succeeded()
	})
	fmt.Fprintln(w)
	fmt.Fprintln(w, t.String())
	return nil
}

func revRange(r *store.Run) string {
	if r.FromRev == "" && r.ToRev == "" {
		return ""
	}
	return r.FromRev + ".." + r.ToRev
}
