package provider

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shellpilot/shellpilot/internal/domain"
)

func TestExtractProposalsFencedBlock(t *testing.T) {
	content := "This checks service health.\n\n```sh\nsystemctl status nginx\n```\n"
	got := extractProposals(content)

	want := []domain.Proposal{
		{RawText: "systemctl status nginx", Summary: "This checks service health."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("proposals mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractProposalsMultipleLines(t *testing.T) {
	content := "Rotate the logs.\n```bash\n# rotate\nlogrotate -f /etc/logrotate.conf\njournalctl --vacuum-size=100M\n```"
	got := extractProposals(content)

	if len(got) != 2 {
		t.Fatalf("expected 2 proposals, got %d: %+v", len(got), got)
	}
	if got[0].RawText != "logrotate -f /etc/logrotate.conf" {
		t.Fatalf("first proposal = %q", got[0].RawText)
	}
	if got[1].RawText != "journalctl --vacuum-size=100M" {
		t.Fatalf("second proposal = %q", got[1].RawText)
	}
}

func TestExtractProposalsCommandPrefix(t *testing.T) {
	content := "You can check uptime.\ncommand: uptime"
	got := extractProposals(content)

	if len(got) != 1 || got[0].RawText != "uptime" {
		t.Fatalf("expected uptime proposal, got %+v", got)
	}
}

func TestExtractProposalsCommentaryYieldsZero(t *testing.T) {
	content := "That request does not require running anything; the service is already enabled."
	got := extractProposals(content)

	if len(got) != 0 {
		t.Fatalf("expected zero proposals for commentary, got %+v", got)
	}
}

func TestFencedBlocksStripLanguageMarker(t *testing.T) {
	blocks := fencedBlocks("```sh\ndf -h\n```")
	if len(blocks) != 1 || blocks[0] != "df -h" {
		t.Fatalf("blocks = %+v", blocks)
	}
}
