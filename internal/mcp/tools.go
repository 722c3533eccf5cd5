package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/storage"
)

const intentSchemaHelp = `INTENT SHAPE:
{
  "agent_id": "agent-a",                      (required)
  "description": "User auth service",         (required)
  "id": "...", "timestamp": "RFC3339",        (optional, assigned when absent)
  "provides": [{"name": "User", "kind": "model", "signature": "id: UUID, email: str", "tags": ["user", "auth"]}],
  "requires": [ ...same shape as provides... ],
  "constraints": [{"target": "User model", "requirement": "must have email: str", "severity": "required", "affects_tags": ["user"]}],
  "evidence": [{"kind": "test_pass", "description": "auth suite green"}],
  "parent_id": "id of the intent this one refines"
}
kind: function, class, model, endpoint, migration, config
severity: preferred, required (default), critical
evidence kind: test_pass, test_fail, code_committed, consumed_by_other, conflict, manual_approval`

// intentView is an intent as returned to agents, with the stability the
// graph actually uses for arbitration.
type intentView struct {
	model.IntentNode
	ComputedStability float64 `json:"computed_stability"`
}

func (s *Server) registerTools() {
	// convergent_resolve: dry-run a candidate against the graph.
	s.mcpServer.AddTool(
		mcplib.NewTool("convergent_resolve",
			mcplib.WithDescription(`Check a candidate intent against what other agents have already declared.

WHEN TO USE: BEFORE you start building something another agent might also
build or depend on. Nothing is written; call convergent_publish afterwards.

WHAT YOU GET BACK:
- adjustments: what you should change (consume_instead, adapt_signature, adopt_constraint)
- conflicts: overlaps with equal or lower stability that need a decision
- adopted_constraints: constraints from other agents that now bind you
- my_stability: the computed stability of your candidate

`+intentSchemaHelp),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithObject("intent",
				mcplib.Description("The candidate intent (object or JSON string)"),
				mcplib.Required(),
			),
			mcplib.WithNumber("min_stability",
				mcplib.Description("Ignore other agents' intents below this computed stability"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
		),
		s.handleResolve,
	)

	// convergent_publish: append an intent to the graph.
	s.mcpServer.AddTool(
		mcplib.NewTool("convergent_publish",
			mcplib.WithDescription(`Publish an intent to the shared graph so other agents can see it.

WHEN TO USE: once you have committed to a plan, and again with a parent_id
whenever you refine it or gather evidence (tests passing, code committed).
Published intents are never modified or removed.

By default the intent is resolved first and the resolution is returned with
the publish result. The intent is published even when conflicts are found.

`+intentSchemaHelp),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithObject("intent",
				mcplib.Description("The intent to publish (object or JSON string)"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("resolve",
				mcplib.Description("Resolve before publishing and include the result (default true)"),
				mcplib.DefaultBool(true),
			),
		),
		s.handlePublish,
	)

	// convergent_query: read intents from the graph.
	s.mcpServer.AddTool(
		mcplib.NewTool("convergent_query",
			mcplib.WithDescription(`List published intents, oldest first.

WHEN TO USE: to see what a specific agent has declared, or what changed since
you last looked.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id", mcplib.Description("Only intents published by this agent")),
			mcplib.WithString("since", mcplib.Description("Only intents strictly newer than this RFC3339 timestamp")),
			mcplib.WithString("intent_id", mcplib.Description("Return this intent and its refinement lineage, newest first")),
			mcplib.WithNumber("min_stability",
				mcplib.Description("Minimum computed stability"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Return at most this many of the most recent matches (default 50)"),
				mcplib.Min(1),
				mcplib.Max(1000),
			),
		),
		s.handleQuery,
	)

	// convergent_overlaps: structural overlap lookup.
	s.mcpServer.AddTool(
		mcplib.NewTool("convergent_overlaps",
			mcplib.WithDescription(`Find intents whose provided or required interfaces overlap the given specs.

WHEN TO USE: when you only know the interfaces you care about and want to see
who else touches them. Overlap means a matching normalized name or at least
two shared tags.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithArray("specs",
				mcplib.Description(`Interface specs: [{"name": "User", "kind": "model", "signature": "...", "tags": ["user"]}]`),
				mcplib.Required(),
				mcplib.Items(map[string]any{"type": "object"}),
			),
			mcplib.WithString("exclude_agent", mcplib.Description("Skip intents published by this agent (usually yourself)")),
			mcplib.WithNumber("min_stability",
				mcplib.Description("Minimum computed stability"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
		),
		s.handleOverlaps,
	)

	// convergent_summary: aggregate graph statistics.
	s.mcpServer.AddTool(
		mcplib.NewTool("convergent_summary",
			mcplib.WithDescription("Summarize the intent graph: intent count, agents, average and high computed stability."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleSummary,
	)
}

func (s *Server) handleResolve(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	candidate, err := s.decodeIntent(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	minStability, err := s.minStability(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	result, err := s.resolver.Resolve(ctx, candidate, minStability)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to resolve intent: %v", err)), nil
	}
	s.tracker.Record(candidate.AgentID, trackSubject(candidate))

	return jsonResult(map[string]any{
		"intent_id":           candidate.ID,
		"my_stability":        s.db.Scorer().Compute(candidate),
		"clean":               result.IsClean(),
		"adjustments":         orEmpty(result.Adjustments),
		"conflicts":           orEmpty(result.Conflicts),
		"adopted_constraints": orEmpty(result.AdoptedConstraints),
	})
}

func (s *Server) handlePublish(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	n, err := s.decodeIntent(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	resolve := request.GetBool("resolve", true)
	resolvedBefore := s.tracker.WasResolved(n.AgentID, trackSubject(n))

	out := map[string]any{"intent_id": n.ID}
	var computed float64
	if resolve {
		var result model.ResolutionResult
		result, computed, err = s.resolver.ResolveAndPublish(ctx, n, s.opts.MinStability)
		if err == nil {
			out["resolution"] = map[string]any{
				"clean":               result.IsClean(),
				"adjustments":         orEmpty(result.Adjustments),
				"conflicts":           orEmpty(result.Conflicts),
				"adopted_constraints": orEmpty(result.AdoptedConstraints),
			}
		}
	} else {
		computed, err = s.db.Publish(ctx, n)
	}
	if err != nil {
		return errorResult(publishErrorMessage(err)), nil
	}
	out["computed_stability"] = computed

	if !resolve && !resolvedBefore {
		out["note"] = "Published without resolving. Call convergent_resolve first so conflicts surface before you build."
	}

	s.logger.Info("mcp: intent published",
		"intent_id", n.ID, "agent_id", n.AgentID, "computed_stability", computed)
	if s.opts.OnPublish != nil {
		s.opts.OnPublish(ctx, n, computed)
	}
	return jsonResult(out)
}

func (s *Server) handleQuery(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	minStability, err := s.minStability(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	limit := request.GetInt("limit", 50)
	if limit <= 0 {
		return errorResult("limit must be positive"), nil
	}
	agentID := strings.TrimSpace(request.GetString("agent_id", ""))

	var (
		intents     []model.IntentNode
		newestFirst bool
	)
	switch {
	case request.GetString("intent_id", "") != "":
		intents, err = s.db.Lineage(ctx, request.GetString("intent_id", ""))
		newestFirst = true
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult("intent not found: " + request.GetString("intent_id", "")), nil
		}
	case request.GetString("since", "") != "":
		since, perr := time.Parse(time.RFC3339Nano, request.GetString("since", ""))
		if perr != nil {
			return errorResult("since must be an RFC3339 timestamp"), nil
		}
		intents, err = s.db.QuerySince(ctx, since, minStability)
	case agentID != "":
		intents, err = s.db.QueryByAgent(ctx, agentID)
	default:
		intents, err = s.db.QueryAll(ctx, minStability)
	}
	if err != nil {
		return errorResult(fmt.Sprintf("failed to query intents: %v", err)), nil
	}

	views := s.views(intents, agentID, minStability)
	total := len(views)
	// Keep the newest limit; lineage is the only newest-first listing.
	if len(views) > limit {
		if newestFirst {
			views = views[:limit]
		} else {
			views = views[len(views)-limit:]
		}
	}
	return jsonResult(map[string]any{
		"intents": views,
		"total":   total,
	})
}

func (s *Server) handleOverlaps(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var payload []specPayload
	if err := decodeArg("specs", request.GetArguments()["specs"], &payload); err != nil {
		return errorResult(err.Error()), nil
	}
	specs, err := s.decoder.specList(payload)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	minStability, err := s.minStability(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	intents, err := s.db.FindOverlapping(ctx, specs, request.GetString("exclude_agent", ""), minStability)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to find overlapping intents: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"intents": s.views(intents, "", 0),
		"total":   len(intents),
	})
}

func (s *Server) handleSummary(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	summary, err := s.db.Summary(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to summarize graph: %v", err)), nil
	}
	return jsonResult(summary)
}

func (s *Server) decodeIntent(request mcplib.CallToolRequest) (model.IntentNode, error) {
	var p intentPayload
	if err := decodeArg("intent", request.GetArguments()["intent"], &p); err != nil {
		return model.IntentNode{}, err
	}
	return s.decoder.intent(p)
}

func (s *Server) minStability(request mcplib.CallToolRequest) (float64, error) {
	v := request.GetFloat("min_stability", s.opts.MinStability)
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("min_stability must be within [0, 1], got %v", v)
	}
	return v, nil
}

// views attaches computed stability and applies the agent and stability
// filters the storage query could not.
func (s *Server) views(intents []model.IntentNode, agentID string, minStability float64) []intentView {
	scorer := s.db.Scorer()
	out := make([]intentView, 0, len(intents))
	for _, n := range intents {
		if agentID != "" && n.AgentID != agentID {
			continue
		}
		computed := scorer.Compute(n)
		if computed < minStability {
			continue
		}
		out = append(out, intentView{IntentNode: n, ComputedStability: computed})
	}
	return out
}

func publishErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return "an intent with this id already exists; published intents are immutable, publish a refinement with parent_id instead"
	case errors.Is(err, storage.ErrUnknownParent):
		return "parent_id does not name a published intent"
	case errors.Is(err, storage.ErrInvalidIntent):
		return err.Error()
	default:
		return fmt.Sprintf("failed to publish intent: %v", err)
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
