package domain

import "time"

// LedgerEntry is one command snapshot taken at a lifecycle transition.
// Entries are ordered, append-only, and never mutated once written; the
// ledger owns them exclusively.
type LedgerEntry struct {
	Seq        int64
	RecordedAt time.Time
	Command    Command
	Note       string
}

// EventType labels status stream events delivered to the UI.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventOutputChunk   EventType = "output_chunk"
	EventCompleted     EventType = "completed"
	EventCommentary    EventType = "commentary"
)

// Event is a streamed update so the UI can render live state without
// polling the session.
type Event struct {
	Type      EventType
	CommandID string
	Status    Status
	Tier      RiskTier
	Reason    string

	// Stream and Chunk are set for output events only.
	Stream string
	Chunk  string

	// Text carries provider commentary that produced no proposals.
	Text string
}

// OutputChunk is a piece of live child-process output.
type OutputChunk struct {
	Stream string // "stdout" or "stderr"
	Data   []byte
}
