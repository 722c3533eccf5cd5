// Package mcp implements the Model Context Protocol server for Convergent.
//
// Agents publish intents, ask for resolution against the shared graph, and
// browse what others have declared through MCP tools and resources.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/convergent/internal/conflicts"
	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/storage"
)

// PublishFunc is called after every successful publish through the MCP tools.
type PublishFunc func(ctx context.Context, n model.IntentNode, computedStability float64)

// Options configures a Server. The zero value is usable.
type Options struct {
	// Version is reported to clients during initialization.
	Version string

	// MinStability is the default floor for resolve, query and overlap calls
	// that do not pass min_stability.
	MinStability float64

	// ResolveWindow is how long a convergent_resolve call counts as
	// "resolved before publishing". Defaults to 30 minutes.
	ResolveWindow time.Duration

	// OnPublish, if set, runs after each successful publish.
	OnPublish PublishFunc
}

// Server wraps the MCP server with Convergent's graph and resolver.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	resolver  *conflicts.Resolver
	decoder   *decoder
	tracker   *resolveTracker
	opts      Options
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(db *storage.DB, resolver *conflicts.Resolver, opts Options, logger *slog.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.ResolveWindow <= 0 {
		opts.ResolveWindow = 30 * time.Minute
	}

	s := &Server{
		db:       db,
		resolver: resolver,
		decoder:  newDecoder(),
		tracker:  newResolveTracker(opts.ResolveWindow),
		opts:     opts,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"convergent",
		opts.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}
