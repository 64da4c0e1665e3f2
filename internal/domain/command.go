package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RiskTier is the severity classification assigned once per command.
type RiskTier string

const (
	TierSafe      RiskTier = "safe"
	TierCaution   RiskTier = "caution"
	TierDangerous RiskTier = "dangerous"
	TierBlocked   RiskTier = "blocked"
)

// MoreSevere reports whether next outranks current.
func MoreSevere(next RiskTier, current RiskTier) bool {
	return tierRank(next) > tierRank(current)
}

func tierRank(tier RiskTier) int {
	switch tier {
	case TierCaution:
		return 1
	case TierDangerous:
		return 2
	case TierBlocked:
		return 3
	default:
		return 0
	}
}

// Status is the lifecycle state of a command.
type Status string

const (
	StatusProposed             Status = "proposed"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
	StatusExecuting            Status = "executing"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validNext maps each status to the transitions the lifecycle allows.
// There are no backward edges; a command only ever moves forward.
var validNext = map[Status][]Status{
	StatusProposed:             {StatusAwaitingConfirmation, StatusApproved, StatusRejected},
	StatusAwaitingConfirmation: {StatusApproved, StatusRejected},
	StatusApproved:             {StatusExecuting, StatusCancelled},
	StatusExecuting:            {StatusCompleted, StatusFailed, StatusCancelled},
}

// ValidTransition reports whether from → to is a legal lifecycle move.
func ValidTransition(from Status, to Status) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Command is a proposed shell operation and its lifecycle metadata.
// Created by the provider gateway, classified once, decided once,
// executed at most once, then immutable in the ledger.
type Command struct {
	ID            string
	RawText       string
	IntentSummary string
	RiskTier      RiskTier
	RiskReasons   []string
	Status        Status
	StatusReason  string

	CreatedAt   time.Time
	DecidedAt   time.Time
	CompletedAt time.Time

	ExitCode        int
	Stdout          string
	Stderr          string
	OutputTruncated bool
	Duration        time.Duration
}

// NewCommand validates and constructs a command in the Proposed state.
// maxLength of 0 means the default limit.
func NewCommand(rawText string, intentSummary string, maxLength int) (Command, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxCommandLength
	}
	trimmed := strings.TrimSpace(rawText)
	if trimmed == "" {
		return Command{}, fmt.Errorf("%w: empty command text", ErrInvalidCommand)
	}
	if len(trimmed) > maxLength {
		return Command{}, fmt.Errorf("%w: command exceeds %d bytes", ErrInvalidCommand, maxLength)
	}
	return Command{
		ID:            uuid.NewString(),
		RawText:       trimmed,
		IntentSummary: strings.TrimSpace(intentSummary),
		Status:        StatusProposed,
		CreatedAt:     time.Now(),
	}, nil
}

// Transition advances the lifecycle, recording the reason and timestamps.
func (c *Command) Transition(to Status, reason string) error {
	if !ValidTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if to == StatusApproved && c.RiskTier == TierBlocked {
		return fmt.Errorf("%w: blocked command cannot be approved", ErrInvalidTransition)
	}
	c.Status = to
	c.StatusReason = reason
	now := time.Now()
	switch to {
	case StatusApproved, StatusRejected:
		c.DecidedAt = now
	case StatusCompleted, StatusFailed, StatusCancelled:
		c.CompletedAt = now
	}
	return nil
}

// SetTier assigns the risk tier. It may be called exactly once, while the
// command is still Proposed.
func (c *Command) SetTier(tier RiskTier, reasons []string) error {
	if c.Status != StatusProposed {
		return fmt.Errorf("%w: tier assignment after %s", ErrInvalidTransition, c.Status)
	}
	if c.RiskTier != "" {
		return fmt.Errorf("%w: tier already assigned", ErrInvalidTransition)
	}
	c.RiskTier = tier
	c.RiskReasons = append([]string(nil), reasons...)
	return nil
}
