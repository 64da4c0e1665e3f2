package provider

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

const systemPrompt = `You are ShellPilot, a cautious Linux administration assistant.
Given the operator's request, reply with the shell command(s) that accomplish it.
Put each command on its own line inside a single fenced block:

` + "```sh\n<command>\n```" + `

Add one short sentence before the block describing what the command does.
If the request needs no command, reply in plain prose without a fenced block.`

// buildUserPrompt renders the intent plus the recent session history,
// oldest first, so the model sees what already happened.
func buildUserPrompt(req ports.ProposeRequest) string {
	var builder strings.Builder
	if len(req.History) > 0 {
		builder.WriteString("Session so far:\n")
		for _, entry := range req.History {
			builder.WriteString(historyLine(entry))
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}
	builder.WriteString(fmt.Sprintf("OS: %s\n\n", runtime.GOOS))
	builder.WriteString("Request: ")
	builder.WriteString(req.Intent)
	return builder.String()
}

func historyLine(entry domain.LedgerEntry) string {
	cmd := entry.Command
	switch cmd.Status {
	case domain.StatusCompleted:
		return fmt.Sprintf("- ran `%s` (exit %d)", cmd.RawText, cmd.ExitCode)
	case domain.StatusFailed, domain.StatusCancelled, domain.StatusRejected:
		return fmt.Sprintf("- `%s` ended %s: %s", cmd.RawText, cmd.Status, cmd.StatusReason)
	default:
		return fmt.Sprintf("- `%s` is %s", cmd.RawText, cmd.Status)
	}
}
