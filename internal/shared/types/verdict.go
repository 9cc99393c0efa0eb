package types

import "fmt"

// Decision is the engine's answer to a score proposal
type Decision int

const (
	// DecisionAccept lets the (possibly replaced) score through
	DecisionAccept Decision = iota
	// DecisionVeto tells the supervisor to make no change
	DecisionVeto
)

// String returns the string representation of the decision
func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionVeto:
		return "veto"
	default:
		return "unknown"
	}
}

// Verdict is returned for every score proposal
type Verdict struct {
	Decision Decision `json:"decision"`
	Score    int      `json:"score"`
	// Overridden is set when Score differs from the proposal
	Overridden bool `json:"overridden"`
}

// Accept passes a proposal through unmodified
func Accept(score int) Verdict {
	return Verdict{Decision: DecisionAccept, Score: score}
}

// Override replaces a proposal with score
func Override(proposed, score int) Verdict {
	return Verdict{Decision: DecisionAccept, Score: score, Overridden: proposed != score}
}

// Veto rejects a proposal
func Veto() Verdict {
	return Verdict{Decision: DecisionVeto}
}

// Vetoed reports whether the supervisor must keep its current score
func (v Verdict) Vetoed() bool {
	return v.Decision == DecisionVeto
}

// String implements fmt.Stringer
func (v Verdict) String() string {
	if v.Vetoed() {
		return "veto"
	}
	return fmt.Sprintf("accept(%d)", v.Score)
}
