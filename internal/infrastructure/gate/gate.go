// Package gate mediates between a classified command and the operator's
// approval. Safe commands pass automatically, Blocked commands are
// rejected automatically, and everything in between waits for an explicit
// decision bounded by a timeout. Absence of a decision is never approval.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// Gate tracks pending confirmations. The wait is a suspended interaction:
// callers receive a channel and stay responsive to cancellation and
// status queries while the decision is outstanding.
type Gate struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingDecision
}

type pendingDecision struct {
	ch    chan domain.Decision
	timer *time.Timer
}

// New builds a gate whose confirmations expire after timeout.
func New(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = domain.DefaultConfirmationTimeout
	}
	return &Gate{
		timeout: timeout,
		pending: make(map[string]*pendingDecision),
	}
}

// Evaluate returns the automatic decision for a tier, or decided=false
// when the tier requires operator confirmation.
func (g *Gate) Evaluate(tier domain.RiskTier) (domain.Decision, bool) {
	switch tier {
	case domain.TierSafe:
		return domain.Decision{Approved: true, Reason: "safe tier, auto-approved"}, true
	case domain.TierBlocked:
		return domain.Decision{Approved: false, Reason: "blocked tier, execution forbidden"}, true
	default:
		return domain.Decision{}, false
	}
}

// Open registers a pending confirmation for commandID and returns the
// channel its decision will arrive on. If no decision is resolved before
// the gate's timeout, a rejection is delivered.
func (g *Gate) Open(commandID string) <-chan domain.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan domain.Decision, 1)
	p := &pendingDecision{ch: ch}
	p.timer = time.AfterFunc(g.timeout, func() {
		g.expire(commandID)
	})
	g.pending[commandID] = p
	return ch
}

// Resolve records the operator's decision for a pending confirmation.
func (g *Gate) Resolve(commandID string, approve bool) error {
	g.mu.Lock()
	p, ok := g.pending[commandID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: no pending confirmation for %s", domain.ErrUnknownCommand, commandID)
	}
	delete(g.pending, commandID)
	g.mu.Unlock()

	p.timer.Stop()
	if approve {
		p.ch <- domain.Decision{Approved: true, Reason: "approved by operator", Operator: true}
	} else {
		p.ch <- domain.Decision{Approved: false, Reason: "declined by operator", Operator: true}
	}
	return nil
}

// Pending reports whether commandID still awaits a decision.
func (g *Gate) Pending(commandID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[commandID]
	return ok
}

func (g *Gate) expire(commandID string) {
	g.mu.Lock()
	p, ok := g.pending[commandID]
	if ok {
		delete(g.pending, commandID)
	}
	g.mu.Unlock()
	if ok {
		p.ch <- domain.Decision{Approved: false, Reason: "confirmation timed out"}
	}
}

// Close rejects every outstanding confirmation, used at session teardown.
func (g *Gate) Close() {
	g.mu.Lock()
	pending := g.pending
	g.pending = make(map[string]*pendingDecision)
	g.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.ch <- domain.Decision{Approved: false, Reason: "session closed"}
	}
}

var _ ports.ConfirmationGate = (*Gate)(nil)
