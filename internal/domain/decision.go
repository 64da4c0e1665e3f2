package domain

// Decision is the confirmation gate's verdict for one command.
type Decision struct {
	Approved bool
	Reason   string
	// Operator is false for automatic and timeout decisions.
	Operator bool
}
