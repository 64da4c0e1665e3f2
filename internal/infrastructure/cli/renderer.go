package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shellpilot/shellpilot/internal/domain"
)

const timeRounding = time.Millisecond

// RenderCommand prints a settled command in a plain, ASCII-only format.
func RenderCommand(out io.Writer, cmd domain.Command) {
	fmt.Fprintf(out, "\nCommand: %s\n", cmd.RawText)
	if cmd.IntentSummary != "" {
		fmt.Fprintf(out, "Summary: %s\n", cmd.IntentSummary)
	}
	fmt.Fprintf(out, "Risk: %s\n", strings.ToUpper(string(cmd.RiskTier)))
	for _, reason := range cmd.RiskReasons {
		fmt.Fprintf(out, " - %s\n", reason)
	}
	fmt.Fprintf(out, "Status: %s", cmd.Status)
	if cmd.StatusReason != "" {
		fmt.Fprintf(out, " (%s)", cmd.StatusReason)
	}
	fmt.Fprintln(out)

	if cmd.Status == domain.StatusCompleted {
		fmt.Fprintf(out, "Exit code: %d, took %s\n", cmd.ExitCode, cmd.Duration.Round(timeRounding))
	}
	if cmd.Stdout != "" {
		fmt.Fprintln(out, "stdout:")
		fmt.Fprintln(out, strings.TrimRight(cmd.Stdout, "\n"))
	}
	if cmd.Stderr != "" {
		fmt.Fprintln(out, "stderr:")
		fmt.Fprintln(out, strings.TrimRight(cmd.Stderr, "\n"))
	}
	if cmd.OutputTruncated {
		fmt.Fprintln(out, "(output truncated at the capture limit)")
	}
}

// RenderClassification prints an offline risk verdict.
func RenderClassification(out io.Writer, rawText string, cls domain.Classification) {
	fmt.Fprintf(out, "Command: %s\n", rawText)
	fmt.Fprintf(out, "Tier: %s\n", strings.ToUpper(string(cls.Tier)))
	for _, reason := range cls.Reasons {
		fmt.Fprintf(out, " - %s\n", reason)
	}
	if len(cls.Reasons) == 0 {
		fmt.Fprintln(out, "No risk rules matched.")
	}
}

// RenderWorkflowPlan prints the steps a workflow will run, in order.
func RenderWorkflowPlan(out io.Writer, wf domain.Workflow) {
	fmt.Fprintf(out, "Workflow: %s\n", wf.Name)
	for i, step := range wf.Steps {
		fmt.Fprintf(out, "%d. %s\n", i+1, step.Name)
		for _, raw := range step.Commands {
			fmt.Fprintf(out, "   $ %s\n", raw)
		}
		for _, raw := range step.Rollback {
			fmt.Fprintf(out, "   rollback: %s\n", raw)
		}
	}
}

// RenderWorkflowSummary prints the outcome tally after a workflow run.
func RenderWorkflowSummary(out io.Writer, wf domain.Workflow) {
	succeeded, failed, skipped := wf.Counts()
	fmt.Fprintf(out, "\nWorkflow %s: %d succeeded, %d failed, %d skipped\n",
		wf.Status, succeeded, failed, skipped)
	for _, step := range wf.Steps {
		if step.Status == domain.StepFailed {
			fmt.Fprintf(out, " - %s failed: %s\n", step.Name, step.FailReason)
		}
	}
}

// RenderHistory prints archived entries, newest first.
func RenderHistory(out io.Writer, entries []domain.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history recorded yet.")
		return
	}
	for _, entry := range entries {
		when := humanize.Time(entry.RecordedAt)
		fmt.Fprintf(out, "%-14s %-10s %-10s %s\n",
			when, entry.Command.RiskTier, entry.Command.Status, entry.Command.RawText)
	}
}
