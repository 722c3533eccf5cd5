// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all application configuration.
type Config struct {
	// Storage settings.
	DatabaseURL    string // SQLite path, ":memory:", or postgres:// URL.
	WriteRetries   int
	RetryBaseDelay time.Duration

	// Resolution settings.
	MinStability float64 // Default stability floor for resolve and overlap queries.
	WeightsFile  string  // Optional YAML file overriding the stability weights.

	// MCP settings.
	MCPTransport string // "stdio" or "http"
	MCPAddr      string // Listen address for the http transport.

	// Rate limiting for the http transport. Zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.DatabaseURL = envStr("CONVERGENT_DATABASE_URL", "convergent.db")
	cfg.WeightsFile = envStr("CONVERGENT_WEIGHTS_FILE", "")
	cfg.MCPTransport = strings.ToLower(envStr("CONVERGENT_MCP_TRANSPORT", TransportStdio))
	cfg.MCPAddr = envStr("CONVERGENT_MCP_ADDR", ":8765")
	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "convergent")
	cfg.LogLevel = envStr("CONVERGENT_LOG_LEVEL", "info")

	cfg.WriteRetries, err = envInt("CONVERGENT_WRITE_RETRIES", 3)
	collect(err)
	cfg.RetryBaseDelay, err = envDuration("CONVERGENT_RETRY_BASE_DELAY", 25*time.Millisecond)
	collect(err)
	cfg.MinStability, err = envFloat("CONVERGENT_MIN_STABILITY", 0)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("CONVERGENT_RATE_LIMIT_RPS", 0)
	collect(err)
	cfg.RateLimitBurst, err = envInt("CONVERGENT_RATE_LIMIT_BURST", 20)
	collect(err)
	cfg.OTELInsecure, err = envBool("CONVERGENT_OTEL_INSECURE", false)
	collect(err)
	cfg.ShutdownTimeout, err = envDuration("CONVERGENT_SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: CONVERGENT_DATABASE_URL is required"))
	}
	if c.MinStability < 0 || c.MinStability > 1 {
		errs = append(errs, fmt.Errorf("config: CONVERGENT_MIN_STABILITY must be within [0, 1], got %v", c.MinStability))
	}
	if c.MCPTransport != TransportStdio && c.MCPTransport != TransportHTTP {
		errs = append(errs, fmt.Errorf("config: CONVERGENT_MCP_TRANSPORT must be %q or %q, got %q",
			TransportStdio, TransportHTTP, c.MCPTransport))
	}
	if c.MCPTransport == TransportHTTP && c.MCPAddr == "" {
		errs = append(errs, errors.New("config: CONVERGENT_MCP_ADDR is required for the http transport"))
	}
	if c.WriteRetries < 0 {
		errs = append(errs, errors.New("config: CONVERGENT_WRITE_RETRIES must be non-negative"))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("config: CONVERGENT_RETRY_BASE_DELAY must be positive"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("config: CONVERGENT_RATE_LIMIT_RPS must be non-negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("config: CONVERGENT_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: CONVERGENT_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
