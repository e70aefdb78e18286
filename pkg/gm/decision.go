package gm

// NoTwist is the universal baseline decision type: the action resolves
// without a narrative complication.
const NoTwist = "no_twist"

// GMDecision is one possible narrative complication for an action. The
// decision set for a single action is mutually exclusive and sums to
// 1.0 after normalization.
type GMDecision struct {
	DecisionType   string   `json:"decision_type"`
	Probability    float64  `json:"probability"`
	GroundingFacts []string `json:"grounding_facts,omitempty"` // world-fact ids justifying the twist
	Context        string   `json:"context,omitempty"`
}

// IsTwist reports whether the decision is a complication rather than
// the baseline.
func (d GMDecision) IsTwist() bool {
	return d.DecisionType != NoTwist
}
