package provider

import (
	"strings"

	"github.com/shellpilot/shellpilot/internal/domain"
)

// extractProposals parses a free-text completion into command proposals.
// Recognized shapes, in order: fenced command blocks, "command:" prefixed
// lines. Content with neither yields zero proposals; commentary is never
// an error.
func extractProposals(content string) []domain.Proposal {
	summary := firstProseLine(content)

	var proposals []domain.Proposal
	for _, block := range fencedBlocks(content) {
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			proposals = append(proposals, domain.Proposal{RawText: line, Summary: summary})
		}
	}
	if len(proposals) > 0 {
		return proposals
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(strings.ToLower(line), "command:"); ok {
			cmd := strings.TrimSpace(line[len(line)-len(rest):])
			if cmd != "" {
				proposals = append(proposals, domain.Proposal{RawText: cmd, Summary: summary})
			}
		}
	}
	return proposals
}

// fencedBlocks returns the contents of every ``` fenced block, with an
// optional language marker line stripped.
func fencedBlocks(content string) []string {
	var blocks []string
	rest := content
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			return blocks
		}
		rest = rest[start+3:]
		end := strings.Index(rest, "```")
		if end == -1 {
			return blocks
		}
		block := rest[:end]
		rest = rest[end+3:]

		if newline := strings.Index(block, "\n"); newline != -1 {
			marker := strings.TrimSpace(block[:newline])
			if marker == "" || isLanguageMarker(marker) {
				block = block[newline+1:]
			}
		}
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
}

func isLanguageMarker(marker string) bool {
	switch strings.ToLower(marker) {
	case "sh", "bash", "shell", "zsh", "console", "terminal":
		return true
	}
	return false
}

// firstProseLine picks the first line outside any fence as the intent
// summary.
func firstProseLine(content string) string {
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		return trimmed
	}
	return ""
}
