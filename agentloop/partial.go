package agentloop

import (
	"fmt"
	"strings"
)

// ErrorCategory groups step failures for targeted recovery advice.
type ErrorCategory string

const (
	CategoryFile       ErrorCategory = "file"
	CategoryNetwork    ErrorCategory = "network"
	CategoryPermission ErrorCategory = "permission"
	CategoryGeneric    ErrorCategory = "generic"
)

// classifyErrorText buckets an error message by keyword. Checks run in a
// fixed order so a message matching several buckets lands deterministically.
func classifyErrorText(errMsg string) ErrorCategory {
	msg := strings.ToLower(errMsg)
	switch {
	case strings.Contains(msg, "file not found"), strings.Contains(msg, "no such file"):
		return CategoryFile
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return CategoryNetwork
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "unauthorized"):
		return CategoryPermission
	default:
		return CategoryGeneric
	}
}

var categorySuggestions = map[ErrorCategory][]string{
	CategoryFile: {
		"Verify the file path exists and is spelled correctly",
		"List the parent directory to locate the intended file",
	},
	CategoryNetwork: {
		"Check network connectivity and retry the operation",
		"Increase the timeout if the remote service is slow",
	},
	CategoryPermission: {
		"Check file and directory permissions for the current user",
		"Verify credentials or API keys are present and valid",
	},
	CategoryGeneric: {
		"Review the error details above and adjust the approach",
		"Break the task into smaller steps and retry them individually",
	},
}

// StepSummary is a successful step in a partial report, with a trimmed
// payload preview.
type StepSummary struct {
	Label   string
	Preview string
}

// FailureSummary is a failed step with its error text.
type FailureSummary struct {
	Label string
	Error string
}

// Report is the structured summary of an incomplete run: what finished,
// what failed, why the run stopped, and what to try next.
type Report struct {
	TaskID      string
	Completed   []StepSummary
	Failed      []FailureSummary
	StopReason  string
	Suggestions []string
}

const previewLimit = 100

func preview(payload string) string {
	p := strings.TrimSpace(payload)
	if len(p) <= previewLimit {
		return p
	}
	return p[:previewLimit] + "..."
}

// Synthesize builds a Report from a checkpoint. It is pure: the same
// checkpoint state and stop reason always produce the same report, and the
// checkpoint is not modified.
func Synthesize(cp *Checkpoint, stopReason string) *Report {
	report := &Report{
		TaskID:     cp.TaskID,
		StopReason: stopReason,
	}

	seen := make(map[ErrorCategory]bool)
	for _, step := range cp.Snapshot() {
		if step.Succeeded {
			report.Completed = append(report.Completed, StepSummary{
				Label:   step.Label,
				Preview: preview(step.Payload),
			})
			continue
		}
		report.Failed = append(report.Failed, FailureSummary{
			Label: step.Label,
			Error: step.Error,
		})
		category := classifyErrorText(step.Error)
		if !seen[category] {
			seen[category] = true
			report.Suggestions = append(report.Suggestions, categorySuggestions[category]...)
		}
	}

	if len(report.Completed) > 0 {
		report.Suggestions = append(report.Suggestions,
			fmt.Sprintf("Resume from checkpoint (Task ID: %s)", cp.TaskID))
	}
	return report
}

// String renders the report as the user-facing partial result text.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString("Partial results\n")
	fmt.Fprintf(&b, "Stopped: %s\n", r.StopReason)

	if len(r.Completed) > 0 {
		fmt.Fprintf(&b, "\nCompleted steps (%d):\n", len(r.Completed))
		for _, s := range r.Completed {
			fmt.Fprintf(&b, "  - %s", s.Label)
			if s.Preview != "" {
				fmt.Fprintf(&b, ": %s", s.Preview)
			}
			b.WriteString("\n")
		}
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed steps (%d):\n", len(r.Failed))
		for _, s := range r.Failed {
			fmt.Fprintf(&b, "  - %s: %s\n", s.Label, s.Error)
		}
	}
	if len(r.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	return b.String()
}
