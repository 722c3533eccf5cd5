// Package storage persists the intent graph and answers overlap queries.
//
// Two dialects are supported behind database/sql: an embedded SQLite file
// (modernc.org/sqlite, the default) and PostgreSQL through pgx's stdlib driver.
// The dialect is chosen from the DSN. Every intent lives in the intents table;
// intent_interfaces holds one row per provided or required spec keyed by
// normalized name and is written in the same transaction as its intent.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/convergent/internal/stability"
	"github.com/ashita-ai/convergent/internal/telemetry"
)

// Options tunes a DB. The zero value is usable.
type Options struct {
	// Scorer computes stability at publish time. Defaults to stability.DefaultWeights.
	Scorer *stability.Scorer

	// MaxRetries is how many times a write is retried on a transient
	// serialization, deadlock or busy error.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

// DB is the intent graph store. Safe for concurrent use: the underlying
// database serializes writers and admits concurrent readers, and this type
// adds no locking of its own.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	scorer  *stability.Scorer
	logger  *slog.Logger

	maxRetries int
	retryDelay time.Duration

	tracer           trace.Tracer
	publishedCounter metric.Int64Counter
	overlapDuration  metric.Float64Histogram
}

// New opens the store described by dsn and pings it. Migrations are not run;
// call RunMigrations.
func New(ctx context.Context, dsn string, opts Options, logger *slog.Logger) (*DB, error) {
	target, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(target.driver, target.source)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", target.dialect, err)
	}
	if target.memory {
		// Every connection to ":memory:" is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", target.dialect, err)
	}

	if opts.Scorer == nil {
		opts.Scorer = stability.NewDefaultScorer()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 25 * time.Millisecond
	}

	meter := telemetry.Meter("convergent/storage")
	published, _ := meter.Int64Counter("convergent.intents.published",
		metric.WithDescription("Intents appended to the graph"),
	)
	overlapDur, _ := meter.Float64Histogram("convergent.overlap.duration",
		metric.WithDescription("Time to find overlapping intents (ms)"),
		metric.WithUnit("ms"),
	)

	logger.Debug("storage: opened", "dialect", target.dialect)

	return &DB{
		sql:              sqlDB,
		dialect:          target.dialect,
		scorer:           opts.Scorer,
		logger:           logger,
		maxRetries:       opts.MaxRetries,
		retryDelay:       opts.RetryBaseDelay,
		tracer:           telemetry.Tracer("convergent/storage"),
		publishedCounter: published,
		overlapDuration:  overlapDur,
	}, nil
}

// Dialect reports which database backs the store.
func (db *DB) Dialect() Dialect { return db.dialect }

// Scorer returns the scorer used at publish time.
func (db *DB) Scorer() *stability.Scorer { return db.scorer }

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// Close releases the underlying connections.
func (db *DB) Close() error {
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}
