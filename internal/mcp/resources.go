package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	summaryURI         = "convergent://graph/summary"
	agentIntentsPrefix = "convergent://agent/"
	agentIntentsSuffix = "/intents"
)

func (s *Server) registerResources() {
	// convergent://graph/summary: aggregate view of the whole graph.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			summaryURI,
			"Graph Summary",
			mcplib.WithResourceDescription("Intent count, agents, and stability statistics for the intent graph"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleGraphSummary,
	)

	// convergent://agent/{id}/intents: everything one agent has published.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			agentIntentsPrefix+"{id}"+agentIntentsSuffix,
			"Agent Intents",
			mcplib.WithTemplateDescription("Intents published by a specific agent, oldest first"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleAgentIntents,
	)
}

func (s *Server) handleGraphSummary(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	summary, err := s.db.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: graph summary: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal summary: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      summaryURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAgentIntents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	agentID, err := parseAgentIntentsURI(uri)
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}

	intents, err := s.db.QueryByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("mcp: agent intents: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"agent_id": agentID,
		"intents":  s.views(intents, "", 0),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal agent intents: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseAgentIntentsURI extracts the agent id from
// convergent://agent/{id}/intents. The id may be percent-encoded.
func parseAgentIntentsURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, agentIntentsPrefix)
	if !ok {
		return "", fmt.Errorf("invalid agent intents URI: %s", uri)
	}
	raw, ok := strings.CutSuffix(rest, agentIntentsSuffix)
	if !ok {
		return "", fmt.Errorf("invalid agent intents URI: %s", uri)
	}
	agentID, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid agent intents URI: %s", uri)
	}
	if strings.TrimSpace(agentID) == "" {
		return "", errors.New("empty agent_id in agent intents URI")
	}
	return agentID, nil
}
