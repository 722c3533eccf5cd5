// Package stability computes how committed an intent is from its evidence.
package stability

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/convergent/internal/model"
)

// HighThreshold is the computed stability at or above which an intent counts
// as high-stability in graph summaries.
const HighThreshold = 0.7

// Weights controls how each kind of evidence moves the score.
type Weights struct {
	Base            float64 `yaml:"base"`
	TestPass        float64 `yaml:"test_pass"`
	TestPassCap     float64 `yaml:"test_pass_cap"`
	CodeCommitted   float64 `yaml:"code_committed"`
	ConsumedByOther float64 `yaml:"consumed_by_other"`
	ConsumedCap     float64 `yaml:"consumed_cap"`

	// ConflictPenalty is subtracted once per Conflict and once per TestFail.
	ConflictPenalty float64 `yaml:"conflict_penalty"`
	ManualApproval  float64 `yaml:"manual_approval"`
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		Base:            0.3,
		TestPass:        0.05,
		TestPassCap:     0.3,
		CodeCommitted:   0.2,
		ConsumedByOther: 0.1,
		ConsumedCap:     0.2,
		ConflictPenalty: 0.15,
		ManualApproval:  0.3,
	}
}

// Validate rejects negative weights and a base outside [0, 1].
func (w Weights) Validate() error {
	var errs []error
	if w.Base < 0 || w.Base > 1 {
		errs = append(errs, fmt.Errorf("stability: base must be within [0, 1], got %v", w.Base))
	}
	for name, v := range map[string]float64{
		"test_pass":         w.TestPass,
		"test_pass_cap":     w.TestPassCap,
		"code_committed":    w.CodeCommitted,
		"consumed_by_other": w.ConsumedByOther,
		"consumed_cap":      w.ConsumedCap,
		"conflict_penalty":  w.ConflictPenalty,
		"manual_approval":   w.ManualApproval,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("stability: %s must be non-negative, got %v", name, v))
		}
	}
	return errors.Join(errs...)
}

// LoadWeights reads a YAML weights file. Keys absent from the file keep their
// default values. An empty path returns DefaultWeights.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("stability: read weights: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("stability: parse weights %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return w, err
	}
	return w, nil
}

// Scorer computes stability scores. Safe for concurrent use; it holds no mutable state.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// NewDefaultScorer creates a scorer with DefaultWeights.
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultWeights())
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Compute returns the intent's stability in [0, 1]. Only the number of
// evidence items of each kind matters, not their order or timestamps. The
// intent's self-declared Stability is ignored.
func (s *Scorer) Compute(n model.IntentNode) float64 {
	counts := make(map[model.EvidenceKind]int, len(model.EvidenceKinds))
	for _, ev := range n.Evidence {
		counts[ev.Kind]++
	}
	w := s.weights

	score := w.Base
	score += min(float64(counts[model.EvidenceTestPass])*w.TestPass, w.TestPassCap)
	if counts[model.EvidenceCodeCommitted] > 0 {
		score += w.CodeCommitted
	}
	score += min(float64(counts[model.EvidenceConsumedByOther])*w.ConsumedByOther, w.ConsumedCap)
	score -= float64(counts[model.EvidenceConflict]) * w.ConflictPenalty
	if counts[model.EvidenceManualApproval] > 0 {
		score += w.ManualApproval
	}
	score -= float64(counts[model.EvidenceTestFail]) * w.ConflictPenalty

	return max(0, min(1, score))
}

// Score pairs an intent id with its computed stability.
type Score struct {
	IntentID  string  `json:"intent_id"`
	Stability float64 `json:"stability"`
}

// ComputeBatch scores each intent, preserving input order.
func (s *Scorer) ComputeBatch(intents []model.IntentNode) []Score {
	out := make([]Score, len(intents))
	for i, n := range intents {
		out[i] = Score{IntentID: n.ID, Stability: s.Compute(n)}
	}
	return out
}
