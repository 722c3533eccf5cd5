package model

// Adjustment is a recommended change for the agent that submitted a candidate intent.
type Adjustment struct {
	Kind        AdjustmentKind `json:"kind"`
	Description string         `json:"description"`

	// SourceIntentID is the published intent that prompted the adjustment.
	SourceIntentID string `json:"source_intent_id"`
}

// ConflictReport describes a clash between the candidate and a published intent
// that resolution does not settle automatically.
type ConflictReport struct {
	MyIntentID           string  `json:"my_intent_id"`
	TheirIntentID        string  `json:"their_intent_id"`
	Description          string  `json:"description"`
	MyStability          float64 `json:"my_stability"`
	TheirStability       float64 `json:"their_stability"`
	ResolutionSuggestion string  `json:"resolution_suggestion"`
}

// ResolutionResult is produced fresh for every resolve call and never persisted.
type ResolutionResult struct {
	OriginalIntentID   string           `json:"original_intent_id"`
	Adjustments        []Adjustment     `json:"adjustments"`
	Conflicts          []ConflictReport `json:"conflicts"`
	AdoptedConstraints []Constraint     `json:"adopted_constraints"`
}

// IsClean reports whether resolution found no conflicts.
func (r ResolutionResult) IsClean() bool { return len(r.Conflicts) == 0 }

// HasAdjustments reports whether resolution recommended at least one adjustment.
func (r ResolutionResult) HasAdjustments() bool { return len(r.Adjustments) > 0 }

// ApplicableConstraint is a constraint published by another agent that applies
// to a candidate intent, with the source intent's recomputed stability.
type ApplicableConstraint struct {
	Constraint      Constraint `json:"constraint"`
	SourceIntentID  string     `json:"source_intent_id"`
	SourceStability float64    `json:"source_stability"`
}

// GraphSummary is an aggregate view of the graph. Derived on every call.
type GraphSummary struct {
	TotalIntents       int      `json:"total_intents"`
	AgentCount         int      `json:"agent_count"`
	Agents             []string `json:"agents"`
	AverageStability   float64  `json:"average_stability"`
	HighStabilityCount int      `json:"high_stability_count"`
}
