package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/convergent/internal/conflicts"
	"github.com/ashita-ai/convergent/internal/mcp"
	"github.com/ashita-ai/convergent/internal/ratelimit"
	"github.com/ashita-ai/convergent/internal/server"
	"github.com/ashita-ai/convergent/internal/storage"
	"github.com/ashita-ai/convergent/internal/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := testutil.TestLogger()
	db := testutil.NewMemoryDB(t, storage.Options{})
	mcpSrv := mcp.New(db, conflicts.NewResolver(db, db.Scorer(), logger), mcp.Options{Version: "test"}, logger)

	srv := server.New(server.ServerConfig{
		DB:        db,
		MCPServer: mcpSrv.MCPServer(),
		Logger:    logger,
		Version:   "test",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newMCPClient(t *testing.T, url string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(url + "/mcp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var result struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Database string `json:"database"`
	}
	data, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "healthy", result.Status)
	assert.Equal(t, "test", result.Version)
	assert.Equal(t, "connected", result.Database)
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoint_Unhealthy(t *testing.T) {
	logger := testutil.TestLogger()
	db := testutil.NewMemoryDB(t, storage.Options{})
	mcpSrv := mcp.New(db, conflicts.NewResolver(db, nil, logger), mcp.Options{}, logger)
	srv := server.New(server.ServerConfig{DB: downDB{}, MCPServer: mcpSrv.MCPServer(), Logger: logger})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disconnected"`)
}

func TestMCPInitialize(t *testing.T) {
	ts := newTestServer(t)
	c, err := mcpclient.NewStreamableHttpClient(ts.URL + "/mcp")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	initResult, err := c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "convergent", initResult.ServerInfo.Name)
	assert.Equal(t, "test", initResult.ServerInfo.Version)
}

func TestMCPListTools(t *testing.T) {
	c := newMCPClient(t, newTestServer(t).URL)

	toolsResult, err := c.ListTools(context.Background(), mcplib.ListToolsRequest{})
	require.NoError(t, err)
	assert.Len(t, toolsResult.Tools, 5)

	toolNames := make(map[string]bool)
	for _, tool := range toolsResult.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{
		"convergent_publish", "convergent_resolve", "convergent_query",
		"convergent_overlaps", "convergent_summary",
	} {
		assert.True(t, toolNames[name], "expected %s tool", name)
	}
}

func TestMCPListResources(t *testing.T) {
	c := newMCPClient(t, newTestServer(t).URL)

	resourcesResult, err := c.ListResources(context.Background(), mcplib.ListResourcesRequest{})
	require.NoError(t, err)
	require.Len(t, resourcesResult.Resources, 1)
	assert.Equal(t, "convergent://graph/summary", resourcesResult.Resources[0].URI)
}

func TestMCPPublishAndResolve(t *testing.T) {
	c := newMCPClient(t, newTestServer(t).URL)
	ctx := context.Background()

	intent := func(agent string) map[string]any {
		return map[string]any{
			"agent_id":    agent,
			"description": "user records",
			"provides": []any{
				map[string]any{"name": "User", "kind": "model", "signature": "id: UUID"},
			},
			"evidence": []any{map[string]any{"kind": "code_committed"}},
		}
	}

	publishResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "convergent_publish",
			Arguments: map[string]any{"intent": intent("agent-a")},
		},
	})
	require.NoError(t, err)
	require.False(t, publishResult.IsError, "publish tool returned error: %v", publishResult.Content)

	candidate := intent("agent-b")
	delete(candidate, "evidence")
	resolveResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "convergent_resolve",
			Arguments: map[string]any{"intent": candidate},
		},
	})
	require.NoError(t, err)
	require.False(t, resolveResult.IsError, "resolve tool returned error: %v", resolveResult.Content)
	require.NotEmpty(t, resolveResult.Content)

	text, ok := resolveResult.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	var body struct {
		Clean       bool `json:"clean"`
		Adjustments []struct {
			Kind string `json:"kind"`
		} `json:"adjustments"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	assert.True(t, body.Clean)
	require.Len(t, body.Adjustments, 1)
	assert.Equal(t, "consume_instead", body.Adjustments[0].Kind)
}

func TestMCPRateLimited(t *testing.T) {
	logger := testutil.TestLogger()
	db := testutil.NewMemoryDB(t, storage.Options{})
	mcpSrv := mcp.New(db, conflicts.NewResolver(db, db.Scorer(), logger), mcp.Options{}, logger)
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	srv := server.New(server.ServerConfig{DB: db, MCPServer: mcpSrv.MCPServer(), Logger: logger, Limiter: limiter})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.NotEqual(t, http.StatusTooManyRequests, post().Code)
	rec := post()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rate limit exceeded"`)

	// Health checks are never limited.
	health := httptest.NewRecorder()
	srv.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}
