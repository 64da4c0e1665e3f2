// Package services contains the session orchestrator: the single place
// where proposals, classification, confirmation, execution, and the audit
// ledger meet.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// Dependencies are the collaborators a session needs. All are required
// except Archive, which degrades to session-only history when nil.
type Dependencies struct {
	Provider   ports.Provider
	Classifier ports.Classifier
	Gate       ports.ConfirmationGate
	Executor   ports.Executor
	Ledger     ports.Ledger
	Archive    ports.Archive
	Logger     ports.Logger
}

// Session owns the command lifecycle for one interactive conversation.
// All lifecycle state is confined to a single control goroutine; public
// methods hand it closures over a channel, so there is exactly one writer
// to the command table and the ledger and no lock ordering to reason
// about.
type Session struct {
	cfg  domain.Config
	deps Dependencies

	ctrl   chan func()
	events chan domain.Event
	done   chan struct{}

	closeOnce sync.Once

	// Owned by the control goroutine.
	commands  map[string]*domain.Command
	queue     []string
	running   string
	cancelRun context.CancelFunc
	closed    bool
	failed    bool
}

// NewSession starts the control loop and returns a ready session.
func NewSession(cfg domain.Config, deps Dependencies) *Session {
	s := &Session{
		cfg:      cfg,
		deps:     deps,
		ctrl:     make(chan func()),
		events:   make(chan domain.Event, 256),
		done:     make(chan struct{}),
		commands: make(map[string]*domain.Command),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	for fn := range s.ctrl {
		fn()
		if s.closed && s.running == "" {
			close(s.done)
			return
		}
	}
}

// do runs fn on the control goroutine, failing once the session is
// closed.
func (s *Session) do(fn func()) error {
	select {
	case s.ctrl <- fn:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// SubmitIntent sends the operator's natural-language request to the
// provider, admits each returned proposal into the lifecycle, and returns
// the new command IDs. Zero IDs with a nil error means the provider
// answered with commentary only.
func (s *Session) SubmitIntent(ctx context.Context, intent string) ([]string, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return nil, fmt.Errorf("%w: empty intent", domain.ErrInvalidCommand)
	}

	history := s.deps.Ledger.Recent(s.cfg.Limits.ContextEntries)
	resp, err := s.deps.Provider.Propose(ctx, ports.ProposeRequest{
		Intent:    intent,
		History:   history,
		MaxTokens: s.cfg.Provider.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", s.deps.Provider.Name(), err)
	}

	if len(resp.Proposals) == 0 {
		text := strings.TrimSpace(resp.RawText)
		if text == "" {
			text = "the provider proposed no command for this request"
		}
		s.emit(domain.Event{Type: domain.EventCommentary, Text: text})
		return nil, nil
	}

	var ids []string
	admitted := make(chan struct{})
	err = s.do(func() {
		defer close(admitted)
		for _, proposal := range resp.Proposals {
			cmd, err := domain.NewCommand(proposal.RawText, proposal.Summary, s.cfg.Limits.MaxCommandLength)
			if err != nil {
				s.deps.Logger.Warn("discarding invalid proposal", map[string]interface{}{"error": err.Error()})
				continue
			}
			cls := s.deps.Classifier.Classify(cmd.RawText)
			if err := cmd.SetTier(cls.Tier, cls.Reasons); err != nil {
				s.deps.Logger.Error("tier assignment failed", err, nil)
				continue
			}
			s.admit(&cmd)
			ids = append(ids, cmd.ID)
		}
	})
	if err != nil {
		return nil, err
	}
	<-admitted
	return ids, nil
}

// SubmitCommand admits one raw command without consulting the provider.
// It follows the same path as provider proposals: classification, the
// confirmation gate, serialized execution, and the ledger.
func (s *Session) SubmitCommand(rawText string, summary string) (string, error) {
	cmd, err := domain.NewCommand(rawText, summary, s.cfg.Limits.MaxCommandLength)
	if err != nil {
		return "", err
	}
	admitted := make(chan struct{})
	if err := s.do(func() {
		defer close(admitted)
		cls := s.deps.Classifier.Classify(cmd.RawText)
		if err := cmd.SetTier(cls.Tier, cls.Reasons); err != nil {
			s.deps.Logger.Error("tier assignment failed", err, nil)
			return
		}
		s.admit(&cmd)
	}); err != nil {
		return "", err
	}
	<-admitted
	return cmd.ID, nil
}

// admit records a classified command and routes it through the gate.
// Control goroutine only.
func (s *Session) admit(cmd *domain.Command) {
	s.commands[cmd.ID] = cmd
	s.record(cmd, "proposed")
	s.emitStatus(cmd)

	if s.closed {
		_ = cmd.Transition(domain.StatusRejected, "session closed")
		s.finish(cmd)
		return
	}

	if decision, decided := s.deps.Gate.Evaluate(cmd.RiskTier); decided {
		s.applyDecision(cmd, decision)
		return
	}

	_ = cmd.Transition(domain.StatusAwaitingConfirmation, "operator confirmation required")
	s.record(cmd, "")
	if s.closed {
		// The record itself failed and fail() already settled the command.
		return
	}
	s.emitStatus(cmd)

	ch := s.deps.Gate.Open(cmd.ID)
	id := cmd.ID
	go func() {
		decision := <-ch
		_ = s.do(func() {
			c, ok := s.commands[id]
			if !ok || c.Status != domain.StatusAwaitingConfirmation {
				return
			}
			s.applyDecision(c, decision)
		})
	}()
}

// applyDecision moves a command past the gate. Control goroutine only.
func (s *Session) applyDecision(cmd *domain.Command, decision domain.Decision) {
	if decision.Approved {
		if err := cmd.Transition(domain.StatusApproved, decision.Reason); err != nil {
			s.deps.Logger.Error("approval rejected by lifecycle", err, map[string]interface{}{"command": cmd.ID})
			return
		}
		s.record(cmd, "")
		if s.closed {
			return
		}
		s.emitStatus(cmd)
		s.queue = append(s.queue, cmd.ID)
		s.startNext()
		return
	}
	_ = cmd.Transition(domain.StatusRejected, decision.Reason)
	s.finish(cmd)
}

// startNext launches the head of the approved queue if nothing is
// running. Control goroutine only.
func (s *Session) startNext() {
	if s.running != "" || len(s.queue) == 0 || s.closed {
		return
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	cmd := s.commands[id]

	_ = cmd.Transition(domain.StatusExecuting, "")
	s.record(cmd, "")
	if s.closed {
		_ = cmd.Transition(domain.StatusCancelled, "audit ledger unavailable")
		s.finish(cmd)
		return
	}
	s.emitStatus(cmd)

	runCtx, cancel := context.WithCancel(context.Background())
	s.running = id
	s.cancelRun = cancel

	rawText := cmd.RawText
	timeout := s.cfg.Execution.Timeout.Std()
	go func() {
		defer cancel()
		result, err := s.deps.Executor.Execute(runCtx, rawText, timeout, func(chunk domain.OutputChunk) {
			s.emit(domain.Event{
				Type:      domain.EventOutputChunk,
				CommandID: id,
				Stream:    chunk.Stream,
				Chunk:     string(chunk.Data),
			})
		})
		_ = s.do(func() { s.finishExecution(id, result, err) })
	}()
}

// finishExecution settles the running command. Control goroutine only.
func (s *Session) finishExecution(id string, result domain.ExecutionResult, err error) {
	s.running = ""
	s.cancelRun = nil

	cmd := s.commands[id]
	cmd.ExitCode = result.ExitCode
	cmd.Stdout = result.Stdout
	cmd.Stderr = result.Stderr
	cmd.OutputTruncated = result.Truncated
	cmd.Duration = result.Duration

	switch {
	case err == nil:
		_ = cmd.Transition(domain.StatusCompleted, fmt.Sprintf("exit code %d", result.ExitCode))
	case errors.Is(err, domain.ErrExecutionCancelled):
		_ = cmd.Transition(domain.StatusCancelled, "execution cancelled")
	default:
		_ = cmd.Transition(domain.StatusFailed, err.Error())
	}
	s.finish(cmd)
	s.startNext()
}

// finish records a terminal state, mirrors it to the archive, and
// notifies subscribers. Control goroutine only.
func (s *Session) finish(cmd *domain.Command) {
	s.record(cmd, "")
	s.emitStatus(cmd)
	s.emit(domain.Event{
		Type:      domain.EventCompleted,
		CommandID: cmd.ID,
		Status:    cmd.Status,
		Tier:      cmd.RiskTier,
		Reason:    cmd.StatusReason,
	})
	if s.deps.Archive != nil {
		entry := domain.LedgerEntry{RecordedAt: time.Now(), Command: *cmd}
		if err := s.deps.Archive.Record(entry); err != nil {
			s.deps.Logger.Warn("archive write failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *Session) record(cmd *domain.Command, note string) {
	if s.failed {
		return
	}
	entry := domain.LedgerEntry{Command: *cmd, Note: note}
	if err := s.deps.Ledger.Append(entry); err != nil {
		s.deps.Logger.Error("ledger append failed, closing session", err, map[string]interface{}{"command": cmd.ID})
		s.fail()
	}
}

// fail shuts the session down after an audit write fault. Work whose
// outcome cannot be recorded must not run, so everything outstanding is
// rejected or cancelled. Control goroutine only.
func (s *Session) fail() {
	if s.failed {
		return
	}
	s.failed = true
	s.closed = true

	s.deps.Gate.Close()
	for _, cmd := range s.commands {
		switch cmd.Status {
		case domain.StatusAwaitingConfirmation:
			_ = cmd.Transition(domain.StatusRejected, "audit ledger unavailable")
			s.finish(cmd)
		case domain.StatusApproved:
			_ = cmd.Transition(domain.StatusCancelled, "audit ledger unavailable")
			s.finish(cmd)
		}
	}
	s.queue = nil
	if s.cancelRun != nil {
		s.cancelRun()
	}
}

func (s *Session) emitStatus(cmd *domain.Command) {
	s.emit(domain.Event{
		Type:      domain.EventStatusChanged,
		CommandID: cmd.ID,
		Status:    cmd.Status,
		Tier:      cmd.RiskTier,
		Reason:    cmd.StatusReason,
	})
}

// emit delivers an event without ever blocking the lifecycle. A slow
// subscriber loses events; the ledger remains the complete record.
func (s *Session) emit(ev domain.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// Confirm resolves a pending confirmation for the command.
func (s *Session) Confirm(commandID string, approve bool) error {
	return s.deps.Gate.Resolve(commandID, approve)
}

// Cancel aborts a command: declines it while awaiting confirmation,
// drops it from the queue while approved, or kills it while executing.
func (s *Session) Cancel(commandID string) error {
	errCh := make(chan error, 1)
	err := s.do(func() {
		cmd, ok := s.commands[commandID]
		if !ok {
			errCh <- fmt.Errorf("%w: %s", domain.ErrUnknownCommand, commandID)
			return
		}
		switch cmd.Status {
		case domain.StatusAwaitingConfirmation:
			errCh <- s.deps.Gate.Resolve(commandID, false)
		case domain.StatusApproved:
			s.queue = removeID(s.queue, commandID)
			_ = cmd.Transition(domain.StatusCancelled, "cancelled before execution")
			s.finish(cmd)
			errCh <- nil
		case domain.StatusExecuting:
			if s.cancelRun != nil {
				s.cancelRun()
			}
			errCh <- nil
		default:
			errCh <- fmt.Errorf("%w: cancel in state %s", domain.ErrInvalidTransition, cmd.Status)
		}
	})
	if err != nil {
		return err
	}
	return <-errCh
}

// Command returns a copy of the command's current state.
func (s *Session) Command(commandID string) (domain.Command, error) {
	var cmd domain.Command
	errCh := make(chan error, 1)
	err := s.do(func() {
		c, ok := s.commands[commandID]
		if !ok {
			errCh <- fmt.Errorf("%w: %s", domain.ErrUnknownCommand, commandID)
			return
		}
		cmd = *c
		errCh <- nil
	})
	if err != nil {
		return domain.Command{}, err
	}
	if err := <-errCh; err != nil {
		return domain.Command{}, err
	}
	return cmd, nil
}

// History returns the session ledger snapshot.
func (s *Session) History() []domain.LedgerEntry {
	return s.deps.Ledger.History()
}

// Events exposes the live status stream. The channel is never closed;
// subscribers should select against Done.
func (s *Session) Events() <-chan domain.Event {
	return s.events
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close rejects pending confirmations, cancels queued and running work,
// and waits for the lifecycle to settle. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.do(func() {
			s.closed = true
			for _, cmd := range s.commands {
				if cmd.Status == domain.StatusAwaitingConfirmation {
					_ = cmd.Transition(domain.StatusRejected, "session closed")
					s.finish(cmd)
				}
			}
			s.deps.Gate.Close()
			for _, id := range s.queue {
				cmd := s.commands[id]
				_ = cmd.Transition(domain.StatusCancelled, "session closed")
				s.finish(cmd)
			}
			s.queue = nil
			if s.cancelRun != nil {
				s.cancelRun()
			}
		})
	})
	<-s.done
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
