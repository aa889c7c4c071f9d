// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-tailor/internal/task"
	"github.com/jonathan/resume-tailor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for task and job status.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintTask outputs the state of one task, with the tailored summary when it is DONE.
func (p *Printer) PrintTask(view *task.TaskView) {
	if view == nil || view.Task == nil {
		return
	}
	t := view.Task

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", statusLabel(t.Status)))
	sb.WriteString(fmt.Sprintf("Job:      %s\n", t.JobID))
	sb.WriteString(fmt.Sprintf("Mode:     %s\n", t.ContentMode))
	if t.RawResumeID != "" {
		sb.WriteString(fmt.Sprintf("Resume:   %s\n", t.RawResumeID))
	}
	if t.Attempts > 0 {
		sb.WriteString(fmt.Sprintf("Attempts: %d\n", t.Attempts))
	}
	if t.TimeUsed > 0 {
		sb.WriteString(fmt.Sprintf("Took:     %.1fs\n", t.TimeUsed))
	}

	switch t.Status {
	case types.TaskStatusFailed:
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Error (%s):\n", t.ErrorKind))
		sb.WriteString(fmt.Sprintf("  %s\n", t.Error))
	case types.TaskStatusDone:
		sb.WriteString(fmt.Sprintf("Output:   %s\n", t.NewResumeID))
		if view.Resume != nil {
			if summary := view.Resume.Content.Summary(); summary != "" {
				sb.WriteString("\nSummary:\n")
				sb.WriteString(fmt.Sprintf("  %s\n", summary))
			}
		}
	}

	p.printBox("TASK "+t.ID, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTasks outputs a one-line row per task. Unknown ids print as missing.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintTasks(ids []string, views []*task.TaskView) {
	for i, id := range ids {
		if i >= len(views) || views[i] == nil || views[i].Task == nil {
			fmt.Fprintf(p.out, "%-38s %-8s\n", id, "MISSING")
			continue
		}
		t := views[i].Task
		detail := t.NewResumeID
		if t.Status == types.TaskStatusFailed {
			detail = truncate(t.Error, 40)
		}
		fmt.Fprintf(p.out, "%-38s %-8s %s\n", id, t.Status, detail)
	}
}

// PrintParsedJob outputs a human-readable summary of the extracted job metadata.
func (p *Printer) PrintParsedJob(job *types.Job) {
	if job == nil || job.Parsed == nil {
		return
	}
	parsed := job.Parsed

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", parsed.Company))
	sb.WriteString(fmt.Sprintf("Role:     %s\n", parsed.JobTitle))
	sb.WriteString("\n")

	if len(parsed.Requirements) > 0 {
		sb.WriteString("Requirements:\n")
		count := min(len(parsed.Requirements), maxItemsToShow)
		for i := 0; i < count; i++ {
			req := parsed.Requirements[i]
			sb.WriteString(fmt.Sprintf("  • %s", req.Skill))
			if req.Level != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", req.Level))
			}
			sb.WriteString("\n")
		}
		if len(parsed.Requirements) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(parsed.Requirements)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	if len(parsed.Keywords) > 0 {
		count := min(len(parsed.Keywords), maxItemsToShow)
		sb.WriteString(fmt.Sprintf("Keywords: %s", strings.Join(parsed.Keywords[:count], ", ")))
		if len(parsed.Keywords) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf(" +%d", len(parsed.Keywords)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	p.printBox("PARSED JOB", strings.TrimSuffix(sb.String(), "\n"))
}

func statusLabel(s types.TaskStatus) string {
	switch s {
	case types.TaskStatusDone:
		return "✅ " + s.String()
	case types.TaskStatusFailed:
		return "❌ " + s.String()
	default:
		return s.String()
	}
}
