package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// WorkflowRunner plans and drives multi-step executions. Every command in
// every step, rollbacks included, still passes through the session's full
// arbitration path: classification, the confirmation gate, serialized
// execution, and the ledger.
type WorkflowRunner struct {
	session   *Session
	provider  ports.Provider
	log       ports.Logger
	maxTokens int
}

// NewWorkflowRunner wires a runner onto an existing session.
func NewWorkflowRunner(session *Session, provider ports.Provider, maxTokens int, log ports.Logger) *WorkflowRunner {
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}
	return &WorkflowRunner{
		session:   session,
		provider:  provider,
		log:       log,
		maxTokens: maxTokens,
	}
}

// Plan asks the provider for a multi-step plan and structures the
// proposals into dependency-ordered steps. Responses with step headings
// keep the provider's grouping; anything else collapses into sequential
// steps grouped by what the commands do.
func (r *WorkflowRunner) Plan(ctx context.Context, intent string) (domain.Workflow, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return domain.Workflow{}, fmt.Errorf("%w: empty intent", domain.ErrInvalidCommand)
	}

	resp, err := r.provider.Propose(ctx, ports.ProposeRequest{Intent: intent, MaxTokens: r.maxTokens})
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("provider %s: %w", r.provider.Name(), err)
	}

	steps := headedSteps(resp.RawText, resp.Proposals)
	if len(steps) == 0 {
		steps = groupedSteps(resp.Proposals)
	}
	if len(steps) == 0 {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrEmptyWorkflow, intent)
	}
	chainDependencies(steps)

	return domain.Workflow{
		ID:     uuid.NewString(),
		Name:   workflowName(intent),
		Intent: intent,
		Plan:   strings.TrimSpace(resp.RawText),
		Steps:  steps,
		Status: domain.StepPending,
	}, nil
}

// Run executes the workflow's steps in order. A step runs only when all
// of its dependencies succeeded; a failed step is retried up to its
// retry budget, then its rollback commands run and the workflow stops.
// confirm, when non-nil, answers confirmation requests for commands the
// gate holds; a nil confirm declines them. onSettled, when non-nil, sees
// every settled command.
func (r *WorkflowRunner) Run(ctx context.Context, wf *domain.Workflow, confirm func(domain.Command) (bool, error), onSettled func(domain.Command)) error {
	wf.Status = domain.StepRunning

	for i := range wf.Steps {
		step := &wf.Steps[i]
		if !dependenciesMet(wf, step) {
			step.Status = domain.StepSkipped
			step.FailReason = "dependencies not met"
			continue
		}
		if err := r.runStep(ctx, step, confirm, onSettled); err != nil {
			wf.Status = domain.StepFailed
			return err
		}
		if step.Status == domain.StepFailed {
			r.rollback(ctx, step, confirm, onSettled)
			break
		}
	}

	for i := range wf.Steps {
		if wf.Steps[i].Status == domain.StepPending {
			wf.Steps[i].Status = domain.StepSkipped
			wf.Steps[i].FailReason = "not reached"
		}
	}

	wf.Status = domain.StepSucceeded
	for _, step := range wf.Steps {
		if step.Status != domain.StepSucceeded {
			wf.Status = domain.StepFailed
			break
		}
	}
	return nil
}

// runStep drives one step to a terminal status. Returned errors are
// infrastructure faults, not command outcomes.
func (r *WorkflowRunner) runStep(ctx context.Context, step *domain.WorkflowStep, confirm func(domain.Command) (bool, error), onSettled func(domain.Command)) error {
	step.Status = domain.StepRunning
	for {
		ok, reason, err := r.runCommands(ctx, step, confirm, onSettled)
		if err != nil {
			step.Status = domain.StepFailed
			step.FailReason = err.Error()
			return err
		}
		if ok {
			step.Status = domain.StepSucceeded
			return nil
		}
		if step.Attempts >= step.MaxRetries || ctx.Err() != nil {
			step.Status = domain.StepFailed
			step.FailReason = reason
			return nil
		}
		step.Attempts++
		r.log.Warn("retrying workflow step", map[string]interface{}{
			"step":    step.Name,
			"attempt": step.Attempts,
			"reason":  reason,
		})
	}
}

func (r *WorkflowRunner) runCommands(ctx context.Context, step *domain.WorkflowStep, confirm func(domain.Command) (bool, error), onSettled func(domain.Command)) (bool, string, error) {
	for _, raw := range step.Commands {
		final, err := r.runOne(ctx, raw, step.Name, confirm, onSettled)
		if err != nil {
			return false, "", err
		}
		step.CommandIDs = append(step.CommandIDs, final.ID)
		if final.Status != domain.StatusCompleted {
			return false, fmt.Sprintf("%s %s: %s", raw, final.Status, final.StatusReason), nil
		}
		if final.ExitCode != 0 {
			return false, fmt.Sprintf("%s exited with code %d", raw, final.ExitCode), nil
		}
	}
	return true, "", nil
}

// rollback runs the step's compensating commands. Their failures are
// logged, not cascaded; compensation is best effort.
func (r *WorkflowRunner) rollback(ctx context.Context, step *domain.WorkflowStep, confirm func(domain.Command) (bool, error), onSettled func(domain.Command)) {
	for _, raw := range step.Rollback {
		final, err := r.runOne(ctx, raw, "rollback for "+step.Name, confirm, onSettled)
		if err != nil || final.Status != domain.StatusCompleted || final.ExitCode != 0 {
			r.log.Warn("rollback command did not complete", map[string]interface{}{
				"step":    step.Name,
				"command": raw,
			})
		}
	}
}

// runOne submits a single command through the session and waits for it to
// settle, answering the gate along the way.
func (r *WorkflowRunner) runOne(ctx context.Context, rawText string, summary string, confirm func(domain.Command) (bool, error), onSettled func(domain.Command)) (domain.Command, error) {
	id, err := r.session.SubmitCommand(rawText, summary)
	if err != nil {
		return domain.Command{}, err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	asked := false
	cancelled := false
	for {
		state, err := r.session.Command(id)
		if err != nil {
			return domain.Command{}, err
		}
		if state.Status.Terminal() {
			if onSettled != nil {
				onSettled(state)
			}
			return state, nil
		}
		if state.Status == domain.StatusAwaitingConfirmation && !asked {
			asked = true
			approved := false
			if confirm != nil {
				approved, err = confirm(state)
				if err != nil {
					return domain.Command{}, err
				}
			}
			// The gate may have timed out while the operator was typing.
			if err := r.session.Confirm(id, approved); err != nil && !errors.Is(err, domain.ErrUnknownCommand) {
				return domain.Command{}, err
			}
		}
		if cancelled {
			<-ticker.C
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
			_ = r.session.Cancel(id)
		case <-ticker.C:
		}
	}
}

func dependenciesMet(wf *domain.Workflow, step *domain.WorkflowStep) bool {
	for _, dep := range step.DependsOn {
		met := false
		for i := range wf.Steps {
			if wf.Steps[i].ID == dep {
				met = wf.Steps[i].Status == domain.StepSucceeded
				break
			}
		}
		if !met {
			return false
		}
	}
	return true
}

// headedSteps extracts steps from a plan that uses step/phase/stage
// headings, assigning each proposal to the heading it appears under.
// Lines of the form "rollback: <command>" attach compensation to the
// current step.
func headedSteps(rawText string, proposals []domain.Proposal) []domain.WorkflowStep {
	var steps []domain.WorkflowStep
	var current *domain.WorkflowStep
	claimed := make([]bool, len(proposals))

	for _, line := range strings.Split(rawText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, ok := stepHeading(trimmed); ok {
			steps = append(steps, domain.WorkflowStep{
				Name:       name,
				MaxRetries: domain.DefaultStepRetries,
				Status:     domain.StepPending,
			})
			current = &steps[len(steps)-1]
			continue
		}
		if current == nil {
			continue
		}
		if rest, ok := strings.CutPrefix(strings.ToLower(trimmed), "rollback:"); ok {
			cmd := strings.TrimSpace(trimmed[len(trimmed)-len(rest):])
			if cmd != "" {
				current.Rollback = append(current.Rollback, cmd)
			}
			continue
		}
		for i, p := range proposals {
			if claimed[i] {
				continue
			}
			if trimmed == p.RawText || strings.Contains(line, p.RawText) {
				current.Commands = append(current.Commands, p.RawText)
				claimed[i] = true
			}
		}
	}

	var out []domain.WorkflowStep
	for _, step := range steps {
		if len(step.Commands) > 0 {
			step.ID = fmt.Sprintf("step-%d", len(out)+1)
			out = append(out, step)
		}
	}
	return out
}

func stepHeading(line string) (string, bool) {
	cleaned := strings.TrimSpace(strings.TrimLeft(line, "#*- "))
	lower := strings.ToLower(cleaned)
	for _, prefix := range []string{"step ", "phase ", "stage "} {
		if strings.HasPrefix(lower, prefix) {
			return cleaned, true
		}
	}
	return "", false
}

// groupedSteps builds a sequential plan from unstructured proposals,
// merging consecutive commands that serve the same concern.
func groupedSteps(proposals []domain.Proposal) []domain.WorkflowStep {
	var steps []domain.WorkflowStep
	for _, p := range proposals {
		name := stepGroup(p.RawText)
		if len(steps) > 0 && steps[len(steps)-1].Name == name {
			steps[len(steps)-1].Commands = append(steps[len(steps)-1].Commands, p.RawText)
			continue
		}
		steps = append(steps, domain.WorkflowStep{
			ID:         fmt.Sprintf("step-%d", len(steps)+1),
			Name:       name,
			Commands:   []string{p.RawText},
			MaxRetries: domain.DefaultStepRetries,
			Status:     domain.StepPending,
		})
	}
	return steps
}

func stepGroup(rawText string) string {
	switch {
	case containsAny(rawText, "apt update", "apt-get update", "yum update", "dnf update", "apt upgrade", "apt-get upgrade"):
		return "system update"
	case containsAny(rawText, "apt install", "apt-get install", "yum install", "dnf install", "pip install", "npm install"):
		return "package installation"
	case containsAny(rawText, "systemctl", "service "):
		return "service management"
	case containsAny(rawText, "iptables", "ufw ", "firewall"):
		return "firewall configuration"
	case containsAny(rawText, "docker", "podman"):
		return "container setup"
	case containsAny(rawText, "git "):
		return "repository setup"
	case containsAny(rawText, "mkdir", "chmod", "chown"):
		return "filesystem setup"
	default:
		return "configuration"
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func chainDependencies(steps []domain.WorkflowStep) {
	for i := 1; i < len(steps); i++ {
		steps[i].DependsOn = []string{steps[i-1].ID}
	}
}

func workflowName(intent string) string {
	runes := []rune(intent)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return intent
}
