// Package convergent is the public API for embedding the Convergent intent graph.
//
// Agents that work on the same codebase without talking to each other publish
// intents (what they provide, what they require, which constraints they
// impose) to a shared append-only graph. Before building, an agent resolves
// its candidate intent against the graph and gets back the adjustments it
// should make, decided by comparing evidence-based stability.
//
//	app, err := convergent.New(ctx,
//	    convergent.WithVersion(version),
//	    convergent.WithPublishHook(myHook),
//	)
//	if err != nil { ... }
//	defer app.Close()
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph is one-way: convergent (root) imports internal/*, but
// internal/* never imports the root package.
package convergent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/convergent/internal/config"
	"github.com/ashita-ai/convergent/internal/conflicts"
	"github.com/ashita-ai/convergent/internal/mcp"
	"github.com/ashita-ai/convergent/internal/ratelimit"
	"github.com/ashita-ai/convergent/internal/report"
	"github.com/ashita-ai/convergent/internal/server"
	"github.com/ashita-ai/convergent/internal/stability"
	"github.com/ashita-ai/convergent/internal/storage"
	"github.com/ashita-ai/convergent/internal/telemetry"
	"github.com/ashita-ai/convergent/migrations"
)

// ErrNotFound is returned when an intent id does not exist in the graph.
var ErrNotFound = storage.ErrNotFound

// App is the Convergent lifecycle. Construct with New(), serve with Run(),
// release with Close(). App has no public fields; use New() options to
// configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	scorer       *stability.Scorer
	resolver     *conflicts.Resolver
	mcp          *mcp.Server
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	hooks        []PublishHook
	hookWG       sync.WaitGroup
	logger       *slog.Logger
	version      string

	// stdio transport endpoints; replaced in tests.
	stdin  io.Reader
	stdout io.Writer

	closeOnce sync.Once
	closeErr  error
}

// New loads configuration, opens the store, runs migrations and wires the
// resolver and MCP server. It does not start serving; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	if !o.skipEnvFile {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.transport != "" {
		cfg.MCPTransport = strings.ToLower(o.transport)
	}
	if o.addr != "" {
		cfg.MCPAddr = o.addr
	}
	if o.minStability != nil {
		cfg.MinStability = *o.minStability
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	version := o.version
	if version == "" {
		version = "dev"
	}
	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg.LogLevel)
	}

	weights := stability.DefaultWeights()
	switch {
	case o.weights != nil:
		if err := o.weights.Validate(); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		weights = *o.weights
	case cfg.WeightsFile != "":
		if weights, err = stability.LoadWeights(cfg.WeightsFile); err != nil {
			return nil, err
		}
	}
	scorer := stability.NewScorer(weights)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, storage.Options{
		Scorer:         scorer,
		MaxRetries:     cfg.WriteRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	a := &App{
		cfg:          cfg,
		db:           db,
		scorer:       scorer,
		otelShutdown: otelShutdown,
		hooks:        o.publishHooks,
		limiter:      ratelimit.NoopLimiter{},
		logger:       logger,
		version:      version,
		stdin:        os.Stdin,
		stdout:       os.Stdout,
	}
	a.resolver = conflicts.NewResolver(db, scorer, logger)
	a.mcp = mcp.New(db, a.resolver, mcp.Options{
		Version:      version,
		MinStability: cfg.MinStability,
		OnPublish:    a.firePublishHooks,
	}, logger)
	if cfg.RateLimitRPS > 0 {
		a.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	a.srv = server.New(server.ServerConfig{
		DB:        db,
		MCPServer: a.mcp.MCPServer(),
		Logger:    logger,
		Limiter:   a.limiter,
		Addr:      cfg.MCPAddr,
		Version:   version,
	})

	logger.Info("convergent ready",
		"version", version,
		"dialect", string(db.Dialect()),
		"transport", cfg.MCPTransport,
		"min_stability", cfg.MinStability,
	)
	return a, nil
}

// Run serves MCP over the configured transport until ctx is cancelled.
// With the http transport, in-flight requests are drained for up to
// CONVERGENT_SHUTDOWN_TIMEOUT on the way out.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.MCPTransport == config.TransportStdio {
		a.logger.Info("mcp stdio transport listening")
		err := mcpserver.NewStdioServer(a.mcp.MCPServer()).Listen(ctx, a.stdin, a.stdout)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close waits for running publish hooks, then releases the store and flushes
// telemetry. Safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.hookWG.Wait()
		var errs []error
		if err := a.limiter.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.otelShutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		a.closeErr = errors.Join(errs...)
		a.logger.Info("convergent stopped")
	})
	return a.closeErr
}

// Handler returns the HTTP handler serving /mcp and /health.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// Version returns the version string the App reports.
func (a *App) Version() string { return a.version }

// MinStability returns the configured default stability floor.
func (a *App) MinStability() float64 { return a.cfg.MinStability }

// ParseIntent decodes an intent from the JSON form agents publish, assigning
// an id and timestamp when absent.
func ParseIntent(data []byte) (Intent, error) {
	return mcp.DecodeIntent(data)
}

// Stability returns the computed stability of an intent under the App's weights.
func (a *App) Stability(n Intent) float64 { return a.scorer.Compute(n) }

// Resolve checks a candidate against the graph without writing anything.
func (a *App) Resolve(ctx context.Context, candidate Intent, minStability float64) (ResolutionResult, error) {
	return a.resolver.Resolve(ctx, candidate, minStability)
}

// Publish resolves the intent against the graph at the configured stability
// floor, appends it, and notifies publish hooks. The intent is published even
// when the result reports conflicts.
func (a *App) Publish(ctx context.Context, n Intent) (ResolutionResult, float64, error) {
	result, computed, err := a.resolver.ResolveAndPublish(ctx, n, a.cfg.MinStability)
	if err != nil {
		return ResolutionResult{}, 0, err
	}
	a.firePublishHooks(ctx, n, computed)
	return result, computed, nil
}

// Intents lists intents oldest first, optionally limited to one agent, whose
// computed stability is at least minStability.
func (a *App) Intents(ctx context.Context, agentID string, minStability float64) ([]Intent, error) {
	if agentID == "" {
		return a.db.QueryAll(ctx, minStability)
	}
	all, err := a.db.QueryByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, n := range all {
		if a.scorer.Compute(n) >= minStability {
			out = append(out, n)
		}
	}
	return out, nil
}

// Intent returns one intent by id. Unknown ids yield ErrNotFound.
func (a *App) Intent(ctx context.Context, id string) (Intent, error) {
	return a.db.GetIntent(ctx, id)
}

// Lineage returns the intent and the intents it refines, newest first.
func (a *App) Lineage(ctx context.Context, id string) ([]Intent, error) {
	return a.db.Lineage(ctx, id)
}

// Summary aggregates the whole graph.
func (a *App) Summary(ctx context.Context) (Summary, error) {
	return a.db.Summary(ctx)
}

// Inspect renders the selected intents to w.
func (a *App) Inspect(ctx context.Context, w io.Writer, req InspectRequest) error {
	if req.Format == "" {
		req.Format = FormatTable
	}
	intents, err := a.Intents(ctx, req.AgentID, req.MinStability)
	if err != nil {
		return err
	}
	return report.New(a.scorer).Render(w, req.Format, intents, report.Options{ShowEvidence: req.ShowEvidence})
}

// firePublishHooks runs every hook in its own goroutine. Hooks outlive the
// request that triggered them, so they get a context that is never cancelled.
func (a *App) firePublishHooks(ctx context.Context, n Intent, computed float64) {
	if len(a.hooks) == 0 {
		return
	}
	hookCtx := context.WithoutCancel(ctx)
	for _, h := range a.hooks {
		a.hookWG.Add(1)
		go func() {
			defer a.hookWG.Done()
			if err := h.OnIntentPublished(hookCtx, n, computed); err != nil {
				a.logger.Warn("publish hook failed", "intent_id", n.ID, "error", err)
			}
		}()
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	// stderr keeps stdout free for MCP stdio frames.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
