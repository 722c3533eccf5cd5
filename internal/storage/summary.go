package storage

import (
	"context"
	"sort"

	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/stability"
)

// Summary derives aggregate figures from the whole graph. Stability figures
// are recomputed from evidence with the store's scorer.
func (db *DB) Summary(ctx context.Context) (model.GraphSummary, error) {
	total, err := db.Count(ctx)
	if err != nil {
		return model.GraphSummary{}, err
	}
	all, err := db.QueryAll(ctx, 0)
	if err != nil {
		return model.GraphSummary{}, err
	}

	agentSet := make(map[string]struct{})
	var sum float64
	high := 0
	for _, score := range db.scorer.ComputeBatch(all) {
		sum += score.Stability
		if score.Stability >= stability.HighThreshold {
			high++
		}
	}
	for _, n := range all {
		agentSet[n.AgentID] = struct{}{}
	}

	agents := make([]string, 0, len(agentSet))
	for a := range agentSet {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	var avg float64
	if len(all) > 0 {
		avg = sum / float64(len(all))
	}

	return model.GraphSummary{
		TotalIntents:       total,
		AgentCount:         len(agents),
		Agents:             agents,
		AverageStability:   avg,
		HighStabilityCount: high,
	}, nil
}
