package domain

import "errors"

// Error taxonomy. Callers match with errors.Is; everything else wraps one
// of these sentinels with %w.
var (
	// ErrInvalidCommand rejects a malformed proposal before classification.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidTransition guards the command lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrUnknownCommand is returned for confirm/cancel on an unknown ID.
	ErrUnknownCommand = errors.New("unknown command id")

	// Provider gateway failures. Unavailable and timeout are retried with
	// backoff; auth and malformed responses surface immediately.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrMalformedResponse   = errors.New("malformed provider response")

	// Execution engine failures. Always terminal for the command; a retry
	// requires a fresh proposal and fresh classification.
	ErrExecutionTimeout   = errors.New("execution timed out")
	ErrExecutionCancelled = errors.New("execution cancelled")
	ErrSpawnFailure       = errors.New("failed to spawn process")

	// ErrLedgerWrite is fatal to the session; an inconsistent audit trail
	// is worse than an aborted one.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrEmptyWorkflow means the provider's plan contained no runnable
	// commands; commentary alone cannot be turned into steps.
	ErrEmptyWorkflow = errors.New("workflow has no steps")
)
