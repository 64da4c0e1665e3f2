package domain

// StepStatus is the lifecycle state of a workflow step, and of the
// workflow as a whole.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// WorkflowStep groups related commands into one unit of progress. Steps
// run in order; a step whose dependencies did not all succeed is skipped.
// Rollback commands compensate for a failed step and pass through the
// same arbitration path as everything else.
type WorkflowStep struct {
	ID        string
	Name      string
	Commands  []string
	Rollback  []string
	DependsOn []string

	MaxRetries int
	Attempts   int
	Status     StepStatus
	FailReason string

	// CommandIDs are the session command IDs this step produced, in
	// submission order, retries included.
	CommandIDs []string
}

// Workflow is an ordered multi-step plan derived from one request.
type Workflow struct {
	ID     string
	Name   string
	Intent string
	Plan   string
	Steps  []WorkflowStep
	Status StepStatus
}

// Counts tallies step outcomes for reporting.
func (w *Workflow) Counts() (succeeded int, failed int, skipped int) {
	for _, step := range w.Steps {
		switch step.Status {
		case StepSucceeded:
			succeeded++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}
