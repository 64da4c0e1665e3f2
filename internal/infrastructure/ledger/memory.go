// Package ledger holds the session audit trail. The in-memory store is
// the authoritative record for a live session; the SQLite archive mirrors
// terminal entries so they outlive the process.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// MemoryLedger is an append-only, in-memory audit ledger. Sequence
// numbers are assigned at append time and strictly increase; entries are
// never rewritten or removed.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	nextSeq int64
}

// NewMemory creates an empty ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{nextSeq: 1}
}

// Append records the entry, stamping its sequence number and timestamp.
func (l *MemoryLedger) Append(entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = l.nextSeq
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	l.nextSeq++
	l.entries = append(l.entries, entry)
	return nil
}

// History returns a snapshot of every entry in append order.
func (l *MemoryLedger) History() []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns the last n entries in append order. n <= 0 returns nil.
func (l *MemoryLedger) Recent(n int) []domain.LedgerEntry {
	if n <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]domain.LedgerEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of entries.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastForCommand returns the most recent entry for a command ID.
func (l *MemoryLedger) LastForCommand(commandID string) (domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Command.ID == commandID {
			return l.entries[i], nil
		}
	}
	return domain.LedgerEntry{}, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, commandID)
}

var _ ports.Ledger = (*MemoryLedger)(nil)
