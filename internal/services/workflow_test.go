package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/pkg/logger"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// scriptedExecutor returns queued results per raw command, then zero
// exits. It never errors; failures are expressed as exit codes.
type scriptedExecutor struct {
	mu       sync.Mutex
	executed []string
	scripted map[string][]domain.ExecutionResult
}

func (e *scriptedExecutor) Execute(ctx context.Context, rawText string, timeout time.Duration, onOutput func(domain.OutputChunk)) (domain.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, rawText)
	if rs := e.scripted[rawText]; len(rs) > 0 {
		r := rs[0]
		e.scripted[rawText] = rs[1:]
		return r, nil
	}
	return domain.ExecutionResult{}, nil
}

func (e *scriptedExecutor) executedCommands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

func newTestRunner(t *testing.T, exec ports.Executor) *WorkflowRunner {
	t.Helper()
	s := newTestSession(t, &scriptedProvider{}, exec, time.Minute)
	return NewWorkflowRunner(s, &scriptedProvider{}, 0, logger.NewNop())
}

func TestPlanKeepsProviderStepHeadings(t *testing.T) {
	resp := ports.ProposeResponse{
		RawText: "Here is the plan.\n\n" +
			"Step 1: update the package index\n```sh\napt-get update\n```\n\n" +
			"Step 2: install nginx\n```sh\napt-get install -y nginx\n```\n" +
			"rollback: apt-get remove -y nginx\n",
		Proposals: []domain.Proposal{
			{RawText: "apt-get update"},
			{RawText: "apt-get install -y nginx"},
		},
	}
	runner := NewWorkflowRunner(nil, &scriptedProvider{resp: resp}, 0, logger.NewNop())

	wf, err := runner.Plan(context.Background(), "set up nginx")
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(wf.Steps) != 2 {
		t.Fatalf("steps = %+v, want 2", wf.Steps)
	}
	first, second := wf.Steps[0], wf.Steps[1]
	if len(first.Commands) != 1 || first.Commands[0] != "apt-get update" {
		t.Fatalf("first step commands = %v", first.Commands)
	}
	if len(second.DependsOn) != 1 || second.DependsOn[0] != first.ID {
		t.Fatalf("second step depends on %v, want %q", second.DependsOn, first.ID)
	}
	if len(second.Rollback) != 1 || second.Rollback[0] != "apt-get remove -y nginx" {
		t.Fatalf("second step rollback = %v", second.Rollback)
	}
}

func TestPlanGroupsUnstructuredResponse(t *testing.T) {
	resp := ports.ProposeResponse{
		RawText: "Install and start nginx.",
		Proposals: []domain.Proposal{
			{RawText: "apt-get install -y nginx"},
			{RawText: "systemctl enable nginx"},
			{RawText: "systemctl start nginx"},
		},
	}
	runner := NewWorkflowRunner(nil, &scriptedProvider{resp: resp}, 0, logger.NewNop())

	wf, err := runner.Plan(context.Background(), "set up nginx")
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(wf.Steps) != 2 {
		t.Fatalf("steps = %+v, want install and service steps", wf.Steps)
	}
	if len(wf.Steps[0].Commands) != 1 || len(wf.Steps[1].Commands) != 2 {
		t.Fatalf("command grouping = %v / %v", wf.Steps[0].Commands, wf.Steps[1].Commands)
	}
}

func TestPlanCommentaryOnlyFails(t *testing.T) {
	resp := ports.ProposeResponse{RawText: "Nothing needs to run for that."}
	runner := NewWorkflowRunner(nil, &scriptedProvider{resp: resp}, 0, logger.NewNop())

	if _, err := runner.Plan(context.Background(), "ponder"); !errors.Is(err, domain.ErrEmptyWorkflow) {
		t.Fatalf("error = %v, want empty workflow", err)
	}
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := newTestRunner(t, exec)

	wf := domain.Workflow{
		Status: domain.StepPending,
		Steps: []domain.WorkflowStep{
			{ID: "step-1", Name: "first", Commands: []string{"echo one", "echo two"}, Status: domain.StepPending},
			{ID: "step-2", Name: "second", Commands: []string{"echo three"}, DependsOn: []string{"step-1"}, Status: domain.StepPending},
		},
	}
	if err := runner.Run(context.Background(), &wf, nil, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if wf.Status != domain.StepSucceeded {
		t.Fatalf("workflow status = %s", wf.Status)
	}
	want := []string{"echo one", "echo two", "echo three"}
	got := exec.executedCommands()
	if len(got) != len(want) {
		t.Fatalf("executed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("executed = %v, want %v", got, want)
		}
	}
}

func TestRunFailedStepRollsBackAndStops(t *testing.T) {
	exec := &scriptedExecutor{scripted: map[string][]domain.ExecutionResult{
		"echo deploy": {{ExitCode: 1}},
	}}
	runner := newTestRunner(t, exec)

	wf := domain.Workflow{
		Status: domain.StepPending,
		Steps: []domain.WorkflowStep{
			{ID: "step-1", Name: "deploy", Commands: []string{"echo deploy"}, Rollback: []string{"echo undo"}, Status: domain.StepPending},
			{ID: "step-2", Name: "verify", Commands: []string{"echo after"}, DependsOn: []string{"step-1"}, Status: domain.StepPending},
		},
	}
	if err := runner.Run(context.Background(), &wf, nil, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if wf.Status != domain.StepFailed {
		t.Fatalf("workflow status = %s", wf.Status)
	}
	if wf.Steps[0].Status != domain.StepFailed {
		t.Fatalf("failed step status = %s (%s)", wf.Steps[0].Status, wf.Steps[0].FailReason)
	}
	if wf.Steps[1].Status != domain.StepSkipped {
		t.Fatalf("dependent step status = %s", wf.Steps[1].Status)
	}

	executed := exec.executedCommands()
	ranUndo := false
	for _, raw := range executed {
		if raw == "echo after" {
			t.Fatalf("dependent step ran after failure: %v", executed)
		}
		if raw == "echo undo" {
			ranUndo = true
		}
	}
	if !ranUndo {
		t.Fatalf("rollback never ran: %v", executed)
	}
}

func TestRunRetriesFailedStep(t *testing.T) {
	exec := &scriptedExecutor{scripted: map[string][]domain.ExecutionResult{
		"echo build": {{ExitCode: 1}},
	}}
	runner := newTestRunner(t, exec)

	wf := domain.Workflow{
		Status: domain.StepPending,
		Steps: []domain.WorkflowStep{
			{ID: "step-1", Name: "build", Commands: []string{"echo build"}, MaxRetries: 1, Status: domain.StepPending},
		},
	}
	if err := runner.Run(context.Background(), &wf, nil, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if wf.Status != domain.StepSucceeded {
		t.Fatalf("workflow status = %s (%s)", wf.Status, wf.Steps[0].FailReason)
	}
	if wf.Steps[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", wf.Steps[0].Attempts)
	}
	if got := exec.executedCommands(); len(got) != 2 {
		t.Fatalf("executed = %v, want two attempts", got)
	}
}

func TestRunConfirmsRiskyCommands(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := newTestRunner(t, exec)

	var askedTier domain.RiskTier
	confirm := func(cmd domain.Command) (bool, error) {
		askedTier = cmd.RiskTier
		return true, nil
	}
	wf := domain.Workflow{
		Status: domain.StepPending,
		Steps: []domain.WorkflowStep{
			{ID: "step-1", Name: "stop service", Commands: []string{"sudo systemctl stop nginx"}, Status: domain.StepPending},
		},
	}
	if err := runner.Run(context.Background(), &wf, confirm, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if wf.Status != domain.StepSucceeded {
		t.Fatalf("workflow status = %s (%s)", wf.Status, wf.Steps[0].FailReason)
	}
	if askedTier != domain.TierDangerous {
		t.Fatalf("confirmed tier = %s, want dangerous", askedTier)
	}
}

func TestRunDeclinesRiskyCommandsWithoutConfirmer(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := newTestRunner(t, exec)

	wf := domain.Workflow{
		Status: domain.StepPending,
		Steps: []domain.WorkflowStep{
			{ID: "step-1", Name: "stop service", Commands: []string{"sudo systemctl stop nginx"}, Status: domain.StepPending},
		},
	}
	if err := runner.Run(context.Background(), &wf, nil, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if wf.Status != domain.StepFailed {
		t.Fatalf("workflow status = %s, want failed", wf.Status)
	}
	if len(exec.executedCommands()) != 0 {
		t.Fatal("risky command executed without approval")
	}
}
