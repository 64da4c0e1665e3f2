package domain

import "time"

// ExecutionResult wraps what the execution engine captured from the child
// process.
type ExecutionResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
	Duration  time.Duration
}
