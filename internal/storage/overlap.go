package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/convergent/internal/matching"
	"github.com/ashita-ai/convergent/internal/model"
)

// loadChunkSize bounds the number of ids bound into one IN (...) clause.
const loadChunkSize = 500

// FindOverlapping returns intents from agents other than excludeAgent, with
// computed stability at least minStability, that provide or require a spec
// structurally overlapping one of specs. Results are ordered oldest first.
//
// Candidates come from the interface index alone; only those are loaded and
// verified with matching.StructurallyOverlaps.
func (db *DB) FindOverlapping(ctx context.Context, specs []model.InterfaceSpec, excludeAgent string, minStability float64) ([]model.IntentNode, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	ctx, span := db.tracer.Start(ctx, "storage.FindOverlapping", trace.WithAttributes(
		attribute.Int("convergent.spec_count", len(specs)),
		attribute.String("convergent.exclude_agent", excludeAgent),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		db.overlapDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	ids, err := db.overlapCandidates(ctx, specs, excludeAgent, minStability)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("convergent.candidate_count", len(ids)))
	if len(ids) == 0 {
		return nil, nil
	}

	candidates, err := db.loadIntents(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []model.IntentNode
	for _, c := range candidates {
		for _, mine := range specs {
			if matching.SpecOverlapsIntent(mine, c) {
				out = append(out, c)
				break
			}
		}
	}
	span.SetAttributes(attribute.Int("convergent.overlap_count", len(out)))
	return out, nil
}

// overlapCandidates runs the index-only prefilter. It may return false
// positives but never misses a true overlap: name containment in either
// direction covers equality and prefix matches, and for specs with two or
// more tags any single shared tag admits the row.
func (db *DB) overlapCandidates(ctx context.Context, specs []model.InterfaceSpec, excludeAgent string, minStability float64) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	for _, spec := range specs {
		var conds []string
		var args []any

		if name := matching.NormalizeName(spec.Name); name != "" {
			conds = append(conds,
				`ii.normalized_name = ?`,
				db.contains(`ii.normalized_name`, `?`),
				db.contains(`?`, `ii.normalized_name`),
			)
			args = append(args, name, name, name)
		}
		if len(spec.Tags) >= 2 {
			for _, tag := range spec.Tags {
				if tag == "" {
					continue
				}
				conds = append(conds, db.contains(`ii.tags`, `?`))
				args = append(args, tag)
			}
		}
		if len(conds) == 0 {
			continue
		}

		query := `SELECT DISTINCT ii.intent_id
			FROM intent_interfaces ii
			JOIN intents i ON i.id = ii.intent_id
			WHERE ii.agent_id != ? AND i.computed_stability >= ?
			  AND (` + strings.Join(conds, " OR ") + `)`
		args = append([]any{excludeAgent, minStability}, args...)

		rows, err := db.sql.QueryContext(ctx, db.rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("storage: overlap candidates: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("storage: scan overlap candidate: %w", err)
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("storage: iterate overlap candidates: %w", err)
		}
	}
	return ids, nil
}

// loadIntents fetches full records for ids, ordered oldest first.
func (db *DB) loadIntents(ctx context.Context, ids []string) ([]model.IntentNode, error) {
	var out []model.IntentNode
	for start := 0; start < len(ids); start += loadChunkSize {
		end := min(start+loadChunkSize, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := db.sql.QueryContext(ctx, db.rebind(
			`SELECT `+intentColumns+` FROM intents WHERE id IN (`+placeholders(len(chunk))+`)`), args...)
		if err != nil {
			return nil, fmt.Errorf("storage: load intents: %w", err)
		}
		batch, err := db.scanIntents(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindApplicableConstraints returns every constraint published by an agent
// other than the candidate's, on an intent with computed stability at least
// minStability, whose affected tags intersect the candidate's spec tags.
// Each is paired with its source intent and that intent's recomputed stability.
func (db *DB) FindApplicableConstraints(ctx context.Context, candidate model.IntentNode, minStability float64) ([]model.ApplicableConstraint, error) {
	if len(candidate.Tags()) == 0 {
		return nil, nil
	}

	rows, err := db.sql.QueryContext(ctx, db.rebind(
		`SELECT `+intentColumns+` FROM intents
		 WHERE agent_id != ? AND computed_stability >= ? AND constraints != '[]'
		 ORDER BY created_at ASC, id ASC`), candidate.AgentID, minStability)
	if err != nil {
		return nil, fmt.Errorf("storage: query constraint sources: %w", err)
	}
	sources, err := db.scanIntents(rows)
	if err != nil {
		return nil, err
	}

	var out []model.ApplicableConstraint
	for _, src := range sources {
		var srcStability float64
		scored := false
		for _, c := range src.Constraints {
			if !matching.ConstraintAppliesTo(c, candidate) {
				continue
			}
			if !scored {
				srcStability = db.scorer.Compute(src)
				scored = true
			}
			out = append(out, model.ApplicableConstraint{
				Constraint:      c,
				SourceIntentID:  src.ID,
				SourceStability: srcStability,
			})
		}
	}
	return out, nil
}
