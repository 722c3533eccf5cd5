// Package model defines the entities of the shared intent graph: published
// intents, the interfaces they provide and require, the constraints they impose
// on other agents, the evidence behind their stability, and the report produced
// when a candidate intent is resolved against the graph.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStability is the self-declared stability of a freshly created intent ("exploring").
const DefaultStability = 0.3

// IntentNode is one agent's published architectural decision. Immutable once published.
//
// Stability is the agent's self-declared hint. The authoritative score is computed
// from Evidence by stability.Scorer and is never taken from this field.
type IntentNode struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
	Provides    []InterfaceSpec `json:"provides"`
	Requires    []InterfaceSpec `json:"requires"`
	Constraints []Constraint    `json:"constraints"`
	Stability   float64         `json:"stability"`
	Evidence    []Evidence      `json:"evidence"`

	// ParentID links a refinement to the intent it refines.
	ParentID *string `json:"parent_id,omitempty"`
}

// NewIntent creates an intent with a fresh identifier, the current UTC time and
// the default exploring stability.
func NewIntent(agentID, description string) IntentNode {
	return IntentNode{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		Timestamp:   time.Now().UTC(),
		Description: description,
		Stability:   DefaultStability,
	}
}

// Specs returns the intent's provided specs followed by its required specs.
func (n IntentNode) Specs() []InterfaceSpec {
	out := make([]InterfaceSpec, 0, len(n.Provides)+len(n.Requires))
	out = append(out, n.Provides...)
	return append(out, n.Requires...)
}

// Tags returns the union of tags across provided and required specs, in first-seen order.
func (n IntentNode) Tags() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, spec := range n.Specs() {
		for _, t := range spec.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

// InterfaceSpec is a named, typed capability an intent provides or requires.
type InterfaceSpec struct {
	Name string        `json:"name"`
	Kind InterfaceKind `json:"kind"`

	// Signature is a "field: type, field: type" list.
	Signature  string   `json:"signature"`
	ModulePath string   `json:"module_path,omitempty"`
	Tags       []string `json:"tags"`
}

// NewInterfaceSpec creates a spec with no module path.
func NewInterfaceSpec(name string, kind InterfaceKind, signature string, tags ...string) InterfaceSpec {
	return InterfaceSpec{Name: name, Kind: kind, Signature: signature, Tags: tags}
}

// Constraint is an obligation one intent imposes on other agents whose specs
// carry any of AffectsTags.
type Constraint struct {
	Target      string   `json:"target"`
	Requirement string   `json:"requirement"`
	Severity    Severity `json:"severity"`
	AffectsTags []string `json:"affects_tags"`
}

// NewConstraint creates a required-severity constraint.
func NewConstraint(target, requirement string, affectsTags ...string) Constraint {
	return Constraint{
		Target:      target,
		Requirement: requirement,
		Severity:    SeverityRequired,
		AffectsTags: affectsTags,
	}
}

// Evidence is a timestamped signal about how committed an intent is.
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewEvidence creates evidence stamped with the current UTC time.
func NewEvidence(kind EvidenceKind, description string) Evidence {
	return Evidence{Kind: kind, Description: description, Timestamp: time.Now().UTC()}
}

// TestPass records a passing test.
func TestPass(description string) Evidence { return NewEvidence(EvidenceTestPass, description) }

// TestFail records a failing test.
func TestFail(description string) Evidence { return NewEvidence(EvidenceTestFail, description) }

// CodeCommitted records that code implementing the intent was committed.
func CodeCommitted(description string) Evidence {
	return NewEvidence(EvidenceCodeCommitted, description)
}

// ConsumedBy records that another agent depends on the intent.
func ConsumedBy(agentID string) Evidence {
	return NewEvidence(EvidenceConsumedByOther, "consumed by "+agentID)
}

// ConflictWith records an unresolved conflict with another intent.
func ConflictWith(description string) Evidence {
	return NewEvidence(EvidenceConflict, description)
}

// ManualApproval records that a human approved the intent.
func ManualApproval(description string) Evidence {
	return NewEvidence(EvidenceManualApproval, description)
}
