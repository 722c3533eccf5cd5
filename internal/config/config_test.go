package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.45")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.45 {
		t.Fatalf("expected 0.45, got %v", v)
	}

	t.Setenv("TEST_FLOAT_BAD", "high")
	_, err = envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-numeric value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="high" is not a valid number` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.DatabaseURL != "convergent.db" {
		t.Fatalf("expected default database convergent.db, got %q", cfg.DatabaseURL)
	}
	if cfg.MCPTransport != TransportStdio {
		t.Fatalf("expected stdio transport, got %q", cfg.MCPTransport)
	}
	if cfg.WriteRetries != 3 || cfg.RetryBaseDelay != 25*time.Millisecond {
		t.Fatalf("unexpected retry defaults: %d, %s", cfg.WriteRetries, cfg.RetryBaseDelay)
	}
	if cfg.MinStability != 0 {
		t.Fatalf("expected min stability 0, got %v", cfg.MinStability)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("CONVERGENT_DATABASE_URL", "postgres://localhost/convergent")
	t.Setenv("CONVERGENT_MIN_STABILITY", "0.5")
	t.Setenv("CONVERGENT_MCP_TRANSPORT", "HTTP")
	t.Setenv("CONVERGENT_OTEL_INSECURE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinStability != 0.5 {
		t.Fatalf("expected 0.5, got %v", cfg.MinStability)
	}
	if cfg.MCPTransport != TransportHTTP {
		t.Fatalf("expected http transport, got %q", cfg.MCPTransport)
	}
	if !cfg.OTELInsecure {
		t.Fatal("expected OTELInsecure")
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("CONVERGENT_WRITE_RETRIES", "abc")
	t.Setenv("CONVERGENT_MIN_STABILITY", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "CONVERGENT_WRITE_RETRIES") {
		t.Fatalf("error should mention CONVERGENT_WRITE_RETRIES, got: %s", got)
	}
	if !strings.Contains(got, "CONVERGENT_MIN_STABILITY") {
		t.Fatalf("error should mention CONVERGENT_MIN_STABILITY, got: %s", got)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	t.Setenv("CONVERGENT_MIN_STABILITY", "1.5")
	t.Setenv("CONVERGENT_MCP_TRANSPORT", "grpc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	got := err.Error()
	if !strings.Contains(got, "CONVERGENT_MIN_STABILITY") || !strings.Contains(got, "CONVERGENT_MCP_TRANSPORT") {
		t.Fatalf("error should mention both variables, got: %s", got)
	}
}

func TestValidateRateLimit(t *testing.T) {
	t.Setenv("CONVERGENT_RATE_LIMIT_RPS", "5")
	t.Setenv("CONVERGENT_RATE_LIMIT_BURST", "0")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "CONVERGENT_RATE_LIMIT_BURST") {
		t.Fatalf("expected burst validation error, got: %v", err)
	}

	t.Setenv("CONVERGENT_RATE_LIMIT_BURST", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected rate limit config: %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}
