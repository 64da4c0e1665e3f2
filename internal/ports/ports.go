// Package ports defines the interfaces between the arbitration engine's
// core and its adapters. The session service depends only on these
// abstractions; concrete implementations live under infrastructure.
package ports

import (
	"context"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// Classifier assigns a risk tier to a raw command string. Implementations
// must be pure and deterministic: same input, same tier, no side effects.
type Classifier interface {
	Classify(rawText string) domain.Classification
}

// Provider turns a natural-language intent plus session context into zero
// or more command proposals. Each variant wraps one completion backend.
type Provider interface {
	Name() string
	Propose(context.Context, ProposeRequest) (ProposeResponse, error)
}

// ProposeRequest carries the intent and the conversation context built
// from recent ledger entries, oldest first.
type ProposeRequest struct {
	Intent    string
	History   []domain.LedgerEntry
	MaxTokens int
}

// ProposeResponse is the provider's raw reply plus parsed proposals.
// Commentary with no command-like content yields zero proposals.
type ProposeResponse struct {
	RawText   string
	Proposals []domain.Proposal
}

// ProviderFactory builds the provider variant named by configuration.
type ProviderFactory interface {
	ForConfig(domain.ProviderConfig) (Provider, error)
}

// Executor runs one approved command and captures its outcome. onOutput,
// when non-nil, receives incremental output chunks. Implementations
// serialize: at most one command runs at a time.
type Executor interface {
	Execute(ctx context.Context, rawText string, timeout time.Duration, onOutput func(domain.OutputChunk)) (domain.ExecutionResult, error)
}

// Ledger is the append-only session audit trail. Append never fails short
// of an unrecoverable storage fault, which is fatal to the session.
// History returns a consistent snapshot; readers never block the writer.
type Ledger interface {
	Append(entry domain.LedgerEntry) error
	History() []domain.LedgerEntry
	Recent(n int) []domain.LedgerEntry
	Len() int
}

// Archive mirrors terminal ledger entries into cross-session storage for
// the history CLI.
type Archive interface {
	Record(entry domain.LedgerEntry) error
	Records(limit int, search string) ([]domain.LedgerEntry, error)
	Close() error
}

// ConfirmationGate arbitrates approval for classified commands. Safe and
// Blocked tiers are decided automatically; the middle tiers open a
// pending decision that resolves by operator input or timeout.
type ConfirmationGate interface {
	Evaluate(tier domain.RiskTier) (domain.Decision, bool)
	Open(commandID string) <-chan domain.Decision
	Resolve(commandID string, approve bool) error
	Pending(commandID string) bool
	Close()
}

// ConfirmationPrompter asks the operator to approve a risky command.
type ConfirmationPrompter interface {
	Confirm(tier domain.RiskTier, command string, reasons []string) (bool, error)
	Enabled() bool
}

// Logger is the structured logging abstraction used across layers.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
