package domain

// Classification aggregates the risk classifier's verdict for one command.
type Classification struct {
	Tier         RiskTier
	Reasons      []string
	MatchedRules []string
}

// Proposal is one command candidate extracted from a provider response,
// before it becomes a Command.
type Proposal struct {
	RawText string
	Summary string
}
