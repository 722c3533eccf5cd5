// Package conflicts arbitrates a candidate intent against the published graph.
//
// Resolution compares computed stability: the more committed side keeps its
// decision and the other adapts. Ties are never settled automatically; they are
// reported as conflicts for the agents (or a human) to sort out.
package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/convergent/internal/matching"
	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/stability"
	"github.com/ashita-ai/convergent/internal/telemetry"
)

const (
	suggestProvider   = "Higher stability should provide; other should consume"
	suggestConstraint = "Higher stability constraint should win"
)

// Graph is the subset of the store resolution needs. *storage.DB satisfies it.
type Graph interface {
	FindOverlapping(ctx context.Context, specs []model.InterfaceSpec, excludeAgent string, minStability float64) ([]model.IntentNode, error)
	FindApplicableConstraints(ctx context.Context, candidate model.IntentNode, minStability float64) ([]model.ApplicableConstraint, error)
	Publish(ctx context.Context, n model.IntentNode) (float64, error)
}

// Resolver produces ResolutionResults. It holds no per-call state and is safe
// for concurrent use.
type Resolver struct {
	graph  Graph
	scorer *stability.Scorer
	logger *slog.Logger
	tracer trace.Tracer

	conflictCounter   metric.Int64Counter
	adjustmentCounter metric.Int64Counter
	resolveDuration   metric.Float64Histogram
}

// NewResolver creates a resolver. A nil scorer uses the default weights.
func NewResolver(graph Graph, scorer *stability.Scorer, logger *slog.Logger) *Resolver {
	if scorer == nil {
		scorer = stability.NewDefaultScorer()
	}
	meter := telemetry.Meter("convergent/conflicts")
	conflictCounter, _ := meter.Int64Counter("convergent.resolve.conflicts",
		metric.WithDescription("Conflicts reported by resolution"),
	)
	adjustmentCounter, _ := meter.Int64Counter("convergent.resolve.adjustments",
		metric.WithDescription("Adjustments recommended by resolution"),
	)
	resolveDur, _ := meter.Float64Histogram("convergent.resolve.duration",
		metric.WithDescription("Time to resolve a candidate intent (ms)"),
		metric.WithUnit("ms"),
	)
	return &Resolver{
		graph:             graph,
		scorer:            scorer,
		logger:            logger,
		tracer:            telemetry.Tracer("convergent/conflicts"),
		conflictCounter:   conflictCounter,
		adjustmentCounter: adjustmentCounter,
		resolveDuration:   resolveDur,
	}
}

// Resolve checks candidate against intents of other agents whose computed
// stability is at least minStability. Nothing is written.
//
// The reads behind a single call are not isolated from concurrent publishes,
// so the result reflects the graph at approximately the time of the call.
func (r *Resolver) Resolve(ctx context.Context, candidate model.IntentNode, minStability float64) (model.ResolutionResult, error) {
	ctx, span := r.tracer.Start(ctx, "conflicts.Resolve", trace.WithAttributes(
		attribute.String("convergent.intent_id", candidate.ID),
		attribute.String("convergent.agent_id", candidate.AgentID),
	))
	defer span.End()
	start := time.Now()

	result := model.ResolutionResult{OriginalIntentID: candidate.ID}
	mine := r.scorer.Compute(candidate)

	overlapping, err := r.graph.FindOverlapping(ctx, candidate.Specs(), candidate.AgentID, minStability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find overlapping failed")
		return model.ResolutionResult{}, fmt.Errorf("conflicts: find overlapping: %w", err)
	}

	for _, other := range overlapping {
		theirs := r.scorer.Compute(other)

		for _, p := range candidate.Provides {
			for _, q := range other.Provides {
				if !matching.StructurallyOverlaps(p, q) {
					continue
				}
				if theirs > mine {
					result.Adjustments = append(result.Adjustments, model.Adjustment{
						Kind: model.AdjustConsumeInstead,
						Description: fmt.Sprintf("Drop '%s', consume '%s' from agent %s (stability %.2f)",
							p.Name, q.Name, other.AgentID, theirs),
						SourceIntentID: other.ID,
					})
					continue
				}
				result.Conflicts = append(result.Conflicts, model.ConflictReport{
					MyIntentID:    candidate.ID,
					TheirIntentID: other.ID,
					Description: fmt.Sprintf("Both provide '%s': my stability %.2f vs their %.2f",
						p.Name, mine, theirs),
					MyStability:          mine,
					TheirStability:       theirs,
					ResolutionSuggestion: suggestProvider,
				})
			}
		}

		// A less committed provider is not owed an adaptation.
		if theirs <= mine {
			continue
		}
		for _, p := range candidate.Requires {
			for _, q := range other.Provides {
				if !matching.StructurallyOverlaps(p, q) || matching.SignaturesCompatible(p.Signature, q.Signature) {
					continue
				}
				result.Adjustments = append(result.Adjustments, model.Adjustment{
					Kind: model.AdjustAdaptSignature,
					Description: fmt.Sprintf("Adapt '%s' signature to match '%s' from agent %s: expected '%s', they provide '%s'",
						p.Name, q.Name, other.AgentID, p.Signature, q.Signature),
					SourceIntentID: other.ID,
				})
			}
		}
	}

	applicable, err := r.graph.FindApplicableConstraints(ctx, candidate, minStability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find constraints failed")
		return model.ResolutionResult{}, fmt.Errorf("conflicts: find applicable constraints: %w", err)
	}

	for _, ac := range applicable {
		if own, clash := conflictingConstraint(candidate.Constraints, ac.Constraint); clash {
			result.Conflicts = append(result.Conflicts, model.ConflictReport{
				MyIntentID:    candidate.ID,
				TheirIntentID: ac.SourceIntentID,
				Description: fmt.Sprintf("Constraint conflict on '%s': my requirement '%s' vs their requirement '%s'",
					ac.Constraint.Target, own.Requirement, ac.Constraint.Requirement),
				MyStability:          mine,
				TheirStability:       ac.SourceStability,
				ResolutionSuggestion: suggestConstraint,
			})
			continue
		}
		result.AdoptedConstraints = append(result.AdoptedConstraints, ac.Constraint)
		result.Adjustments = append(result.Adjustments, model.Adjustment{
			Kind:           model.AdjustAdoptConstraint,
			Description:    fmt.Sprintf("Adopt constraint: %s: %s", ac.Constraint.Target, ac.Constraint.Requirement),
			SourceIntentID: ac.SourceIntentID,
		})
	}

	r.resolveDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	r.conflictCounter.Add(ctx, int64(len(result.Conflicts)))
	r.adjustmentCounter.Add(ctx, int64(len(result.Adjustments)))
	span.SetAttributes(
		attribute.Int("convergent.overlap_count", len(overlapping)),
		attribute.Int("convergent.conflict_count", len(result.Conflicts)),
		attribute.Int("convergent.adjustment_count", len(result.Adjustments)),
	)
	if !result.IsClean() {
		r.logger.Info("resolve: conflicts found",
			"intent_id", candidate.ID, "agent_id", candidate.AgentID, "conflicts", len(result.Conflicts))
	}
	return result, nil
}

// ResolveAndPublish resolves candidate, then appends it to the graph as given.
// The candidate is published even when conflicts are reported; acting on the
// result is the submitting agent's decision. Returns the result and the
// computed stability of the published intent.
func (r *Resolver) ResolveAndPublish(ctx context.Context, candidate model.IntentNode, minStability float64) (model.ResolutionResult, float64, error) {
	result, err := r.Resolve(ctx, candidate, minStability)
	if err != nil {
		return model.ResolutionResult{}, 0, err
	}
	computed, err := r.graph.Publish(ctx, candidate)
	if err != nil {
		return result, 0, fmt.Errorf("conflicts: publish: %w", err)
	}
	return result, computed, nil
}

func conflictingConstraint(own []model.Constraint, theirs model.Constraint) (model.Constraint, bool) {
	for _, c := range own {
		if matching.ConstraintsConflict(c, theirs) {
			return c, true
		}
	}
	return model.Constraint{}, false
}
