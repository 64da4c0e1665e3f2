package ledger

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shellpilot/shellpilot/internal/domain"
)

func entryFor(id, raw string, status domain.Status) domain.LedgerEntry {
	return domain.LedgerEntry{
		Command: domain.Command{
			ID:      id,
			RawText: raw,
			Status:  status,
		},
	}
}

func TestMemoryAppendAssignsMonotonicSequence(t *testing.T) {
	l := NewMemory()
	for i := 0; i < 5; i++ {
		if err := l.Append(entryFor(fmt.Sprintf("cmd-%d", i), "echo hi", domain.StatusProposed)); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	history := l.History()
	if len(history) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(history))
	}
	for i, entry := range history {
		if entry.Seq != int64(i+1) {
			t.Fatalf("entry %d Seq = %d, want %d", i, entry.Seq, i+1)
		}
		if entry.RecordedAt.IsZero() {
			t.Fatalf("entry %d has zero RecordedAt", i)
		}
	}
}

func TestMemoryHistoryIsSnapshot(t *testing.T) {
	l := NewMemory()
	l.Append(entryFor("a", "echo a", domain.StatusProposed))

	history := l.History()
	history[0].Command.RawText = "mutated"

	if got := l.History()[0].Command.RawText; got != "echo a" {
		t.Fatalf("ledger entry mutated through snapshot: %q", got)
	}
}

func TestMemoryRecent(t *testing.T) {
	l := NewMemory()
	for i := 0; i < 10; i++ {
		l.Append(entryFor(fmt.Sprintf("cmd-%d", i), "true", domain.StatusProposed))
	}

	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	if recent[0].Seq != 8 || recent[2].Seq != 10 {
		t.Fatalf("recent seqs = %d..%d, want 8..10", recent[0].Seq, recent[2].Seq)
	}

	if got := l.Recent(0); got != nil {
		t.Fatalf("Recent(0) = %v, want nil", got)
	}
	if got := l.Recent(100); len(got) != 10 {
		t.Fatalf("Recent(100) returned %d entries, want all 10", len(got))
	}
}

func TestMemoryLastForCommand(t *testing.T) {
	l := NewMemory()
	l.Append(entryFor("cmd-1", "echo hi", domain.StatusProposed))
	l.Append(entryFor("cmd-1", "echo hi", domain.StatusApproved))
	l.Append(entryFor("cmd-2", "true", domain.StatusProposed))

	entry, err := l.LastForCommand("cmd-1")
	if err != nil {
		t.Fatalf("LastForCommand error: %v", err)
	}
	if entry.Command.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved", entry.Command.Status)
	}

	if _, err := l.LastForCommand("missing"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	archive, err := NewSQLiteArchive(path)
	if err != nil {
		t.Fatalf("NewSQLiteArchive error: %v", err)
	}
	defer archive.Close()

	entry := entryFor("cmd-1", "df -h", domain.StatusCompleted)
	entry.Command.RiskTier = domain.TierSafe
	entry.Command.IntentSummary = "check disk usage"
	if err := archive.Record(entry); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	records, err := archive.Records(0, "")
	if err != nil {
		t.Fatalf("Records error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	got := records[0].Command
	if got.RawText != "df -h" || got.RiskTier != domain.TierSafe || got.Status != domain.StatusCompleted {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSQLiteArchiveSearchAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	archive, err := NewSQLiteArchive(path)
	if err != nil {
		t.Fatalf("NewSQLiteArchive error: %v", err)
	}
	defer archive.Close()

	for i, raw := range []string{"df -h", "free -h", "df --total"} {
		entry := entryFor(fmt.Sprintf("cmd-%d", i), raw, domain.StatusCompleted)
		if err := archive.Record(entry); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	matches, err := archive.Records(0, "df")
	if err != nil {
		t.Fatalf("Records error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("search matched %d, want 2", len(matches))
	}

	limited, err := archive.Records(1, "")
	if err != nil {
		t.Fatalf("Records error: %v", err)
	}
	if len(limited) != 1 || limited[0].Command.RawText != "df --total" {
		t.Fatalf("limited = %+v, want newest entry only", limited)
	}
}
