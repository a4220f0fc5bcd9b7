// Package report records the outcome of applying a script.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunReport summarizes one migrate or rollback run.
type RunReport struct {
	Version     string        `json:"version"`
	GeneratedAt time.Time     `json:"generated_at"`
	Direction   string        `json:"direction"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Script      ScriptSummary `json:"script"`
	Backup      BackupSummary `json:"backup"`
	Error       string        `json:"error,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Checks      []Check       `json:"checks"`
	NextSteps   []string      `json:"next_steps"`
}

// ScriptSummary describes the script that was applied.
type ScriptSummary struct {
	Path       string `json:"path"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Pending    int    `json:"pending_statements"`
}

// BackupSummary describes the dump taken before the run.
type BackupSummary struct {
	Taken bool   `json:"taken"`
	Path  string `json:"path,omitempty"`
	S3URI string `json:"s3_uri,omitempty"`
}

// Check is a single post-run condition.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Input carries the facts a report is built from.
type Input struct {
	Direction   string
	Source      string
	Destination string
	Script      ScriptSummary
	Backup      BackupSummary
	Err         error
}

// New builds a report and derives its checks and next steps.
func New(in Input, now time.Time) *RunReport {
	r := &RunReport{
		Version:     "1",
		GeneratedAt: now,
		Direction:   in.Direction,
		Source:      in.Source,
		Destination: in.Destination,
		Script:      in.Script,
		Backup:      in.Backup,
	}
	if in.Err != nil {
		r.Error = in.Err.Error()
	}

	r.Checks = []Check{
		{Name: "validated", Passed: in.Script.Outcome != "rejected", Message: "script passed the safety gate"},
		{Name: "applied", Passed: in.Script.Outcome == "executed", Message: "script committed on the destination"},
	}
	if in.Direction == "migration" {
		r.Checks = append(r.Checks, Check{Name: "backup", Passed: in.Backup.Taken, Message: "destination dumped before the run"})
	}
	r.Succeeded = in.Err == nil && in.Script.Outcome == "executed"

	switch {
	case in.Script.Outcome == "rejected":
		r.NextSteps = []string{"Regenerate the script with pgpromote generate; do not edit it by hand"}
	case !r.Succeeded:
		r.NextSteps = []string{"The transaction was rolled back; fix the failing statement and rerun"}
		if in.Backup.Taken {
			r.NextSteps = append(r.NextSteps, "If the destination looks wrong, restore "+in.Backup.Path)
		}
	case in.Direction == "migration":
		r.NextSteps = []string{
			"Review modified objects listed in the migration script",
			"Run pgpromote compare to confirm the schemas converged",
		}
	default:
		r.NextSteps = []string{"Run pgpromote compare to confirm the destination state"}
	}
	return r
}

// FileName is the base name of the report for direction.
func FileName(direction string) string {
	return direction + "_report"
}

// WriteJSON writes the report as JSON.
func WriteJSON(r *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(r *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(r)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(r *RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== pgpromote %s report ===\n", r.Direction)
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "Source:      %s\n", r.Source)
	fmt.Fprintf(&b, "Destination: %s\n\n", r.Destination)

	b.WriteString("Script:\n")
	fmt.Fprintf(&b, "  Path:     %s\n", r.Script.Path)
	fmt.Fprintf(&b, "  Outcome:  %s\n", r.Script.Outcome)
	fmt.Fprintf(&b, "  Duration: %s\n", time.Duration(r.Script.DurationMS)*time.Millisecond)
	if r.Error != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", r.Error)
	}
	b.WriteString("\n")

	if r.Backup.Taken {
		fmt.Fprintf(&b, "Backup: %s\n", r.Backup.Path)
		if r.Backup.S3URI != "" {
			fmt.Fprintf(&b, "  Archived: %s\n", r.Backup.S3URI)
		}
	} else {
		b.WriteString("Backup: none\n")
	}
	b.WriteString("\n")

	if r.Succeeded {
		b.WriteString("Result: SUCCESS\n\n")
	} else {
		b.WriteString("Result: FAILED\n\n")
	}

	b.WriteString("Checks:\n")
	for _, c := range r.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n", status, c.Name, c.Message)
	}
	b.WriteString("\n")

	b.WriteString("Next Steps:\n")
	for i, s := range r.NextSteps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s)
	}
	return b.String()
}
