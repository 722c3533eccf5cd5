package convergent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/testutil"
)

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithDatabaseURL(":memory:"),
		WithoutEnvFile(),
		WithLogger(testutil.TestLogger()),
		WithVersion("test"),
	}
	app, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func userIntent(agent string, evidence ...Evidence) Intent {
	n := model.NewIntent(agent, "user model for "+agent)
	n.Provides = []InterfaceSpec{model.NewInterfaceSpec("User", model.KindModel, "id: UUID, email: str", "auth")}
	n.Evidence = evidence
	return n
}

func TestApp_PublishResolveQuery(t *testing.T) {
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []string
	)
	hook := PublishHookFunc(func(_ context.Context, n Intent, computed float64) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, fmt.Sprintf("%s@%.2f", n.AgentID, computed))
		return nil
	})
	app := newTestApp(t, WithPublishHook(hook))
	assert.Equal(t, "test", app.Version())

	first := userIntent("agent-a", model.CodeCommitted("abc123"))
	result, computed, err := app.Publish(ctx, first)
	require.NoError(t, err)
	assert.True(t, result.IsClean())
	assert.InDelta(t, 0.5, computed, 1e-9)

	candidate := userIntent("agent-b")
	resolved, err := app.Resolve(ctx, candidate, 0)
	require.NoError(t, err)
	require.Len(t, resolved.Adjustments, 1)
	assert.Equal(t, model.AdjustConsumeInstead, resolved.Adjustments[0].Kind)
	assert.Equal(t, first.ID, resolved.Adjustments[0].SourceIntentID)

	// Resolve never writes.
	all, err := app.Intents(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, _, err = app.Publish(ctx, candidate)
	require.NoError(t, err)

	all, err = app.Intents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stable, err := app.Intents(ctx, "", 0.4)
	require.NoError(t, err)
	require.Len(t, stable, 1)
	assert.Equal(t, first.ID, stable[0].ID)

	mine, err := app.Intents(ctx, "agent-b", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, candidate.ID, mine[0].ID)

	none, err := app.Intents(ctx, "agent-b", 0.9)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := app.Intent(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Description, got.Description)
	assert.InDelta(t, 0.5, app.Stability(got), 1e-9)

	_, err = app.Intent(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	summary, err := app.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalIntents)
	assert.Equal(t, []string{"agent-a", "agent-b"}, summary.Agents)

	// Close waits for hooks.
	require.NoError(t, app.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"agent-a@0.50", "agent-b@0.30"}, seen)
}

func TestApp_PublishHookErrorDoesNotFailPublish(t *testing.T) {
	app := newTestApp(t, WithPublishHook(PublishHookFunc(func(context.Context, Intent, float64) error {
		return errors.New("hook down")
	})))

	_, _, err := app.Publish(context.Background(), userIntent("agent-a"))
	require.NoError(t, err)
}

func TestApp_Lineage(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	parent := userIntent("agent-a")
	_, _, err := app.Publish(ctx, parent)
	require.NoError(t, err)

	child := userIntent("agent-a", model.TestPass("unit"))
	child.ParentID = &parent.ID
	_, _, err = app.Publish(ctx, child)
	require.NoError(t, err)

	chain, err := app.Lineage(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, child.ID, chain[0].ID)
	assert.Equal(t, parent.ID, chain[1].ID)
}

func TestApp_Inspect(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	_, _, err := app.Publish(ctx, userIntent("agent-a", model.TestPass("login flow")))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, app.Inspect(ctx, &buf, InspectRequest{ShowEvidence: true}))
	assert.Contains(t, buf.String(), "agent-a")
	assert.Contains(t, buf.String(), "[test_pass] login flow")

	buf.Reset()
	require.NoError(t, app.Inspect(ctx, &buf, InspectRequest{Format: FormatDOT}))
	assert.True(t, strings.HasPrefix(buf.String(), "digraph convergent {"))

	buf.Reset()
	require.NoError(t, app.Inspect(ctx, &buf, InspectRequest{Format: FormatTable, AgentID: "nobody"}))
	assert.Equal(t, "(empty graph)\n", buf.String())

	err = app.Inspect(ctx, &buf, InspectRequest{Format: "svg"})
	require.Error(t, err)
}

func TestNew_Options(t *testing.T) {
	app := newTestApp(t, WithMinStability(0.4), WithWeights(Weights{Base: 0.5}))
	assert.InDelta(t, 0.4, app.MinStability(), 1e-9)
	assert.InDelta(t, 0.5, app.Stability(model.NewIntent("a", "b")), 1e-9)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"transport", WithTransport("carrier-pigeon"), "CONVERGENT_MCP_TRANSPORT"},
		{"min stability", WithMinStability(1.5), "CONVERGENT_MIN_STABILITY"},
		{"weights", WithWeights(Weights{Base: 2}), "base must be within [0, 1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(),
				WithDatabaseURL(":memory:"),
				WithoutEnvFile(),
				WithLogger(testutil.TestLogger()),
				tt.opt,
			)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseIntent(t *testing.T) {
	n, err := ParseIntent([]byte(`{
		"agent_id": "agent-a",
		"description": "auth service",
		"provides": [{"name": "AuthService", "kind": "class", "tags": ["auth"]}],
		"evidence": [{"kind": "committed", "description": "abc"}]
	}`))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())
	assert.Equal(t, model.EvidenceCodeCommitted, n.Evidence[0].Kind)

	_, err = ParseIntent([]byte(`{"description": "no agent"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_id is required")
}

func TestHandler_Health(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestRun_Stdio(t *testing.T) {
	app := newTestApp(t, WithTransport("stdio"))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	app.stdin, app.stdout = inR, outW

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	_, err := fmt.Fprintln(inW, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	require.NoError(t, err)

	line, err := bufio.NewReader(outR).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"name":"convergent"`)
	assert.Contains(t, line, `"version":"test"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_ = inW.Close()
	_ = outR.Close()
}
