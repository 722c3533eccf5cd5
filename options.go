package convergent

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	databaseURL  string
	transport    string
	addr         string
	minStability *float64
	logger       *slog.Logger
	version      string
	weights      *Weights
	publishHooks []PublishHook
	skipEnvFile  bool
}

// WithDatabaseURL overrides the database location from config (CONVERGENT_DATABASE_URL).
// Accepts a SQLite path, ":memory:", or a postgres:// URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithTransport overrides the MCP transport from config (CONVERGENT_MCP_TRANSPORT):
// "stdio" or "http".
func WithTransport(transport string) Option {
	return func(o *resolvedOptions) { o.transport = transport }
}

// WithAddr overrides the HTTP listen address from config (CONVERGENT_MCP_ADDR).
func WithAddr(addr string) Option {
	return func(o *resolvedOptions) { o.addr = addr }
}

// WithMinStability overrides the default stability floor from config (CONVERGENT_MIN_STABILITY).
func WithMinStability(v float64) Option {
	return func(o *resolvedOptions) { o.minStability = &v }
}

// WithLogger sets the structured logger for the App.
// If not set, a JSON logger on stderr at CONVERGENT_LOG_LEVEL is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported to MCP clients, the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithWeights replaces the stability weights, taking precedence over CONVERGENT_WEIGHTS_FILE.
func WithWeights(w Weights) Option {
	return func(o *resolvedOptions) { o.weights = &w }
}

// WithPublishHook registers a hook notified after every successful publish.
// Multiple hooks may be registered; all registered hooks receive every intent.
func WithPublishHook(hook PublishHook) Option {
	return func(o *resolvedOptions) { o.publishHooks = append(o.publishHooks, hook) }
}

// WithoutEnvFile stops New from loading a .env file from the working directory.
func WithoutEnvFile() Option {
	return func(o *resolvedOptions) { o.skipEnvFile = true }
}
