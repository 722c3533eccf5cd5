package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/convergent/internal/matching"
	"github.com/ashita-ai/convergent/internal/model"
)

// timeLayout is fixed-width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const intentColumns = `id, agent_id, created_at, description, provides, requires,
	constraints, evidence, stability, parent_id`

const (
	roleProvides = "provides"
	roleRequires = "requires"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Publish appends an intent to the graph and returns its computed stability.
// The intent row and its interface index rows are written in one transaction,
// so readers never see an intent without its complete index. A zero
// Timestamp is replaced with the current time.
func (db *DB) Publish(ctx context.Context, n model.IntentNode) (float64, error) {
	if strings.TrimSpace(n.ID) == "" {
		return 0, fmt.Errorf("%w: id is required", ErrInvalidIntent)
	}
	if strings.TrimSpace(n.AgentID) == "" {
		return 0, fmt.Errorf("%w: agent_id is required", ErrInvalidIntent)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	ctx, span := db.tracer.Start(ctx, "storage.Publish", trace.WithAttributes(
		attribute.String("convergent.intent_id", n.ID),
		attribute.String("convergent.agent_id", n.AgentID),
	))
	defer span.End()

	computed := db.scorer.Compute(n)

	provides, err := encodeList(n.Provides)
	if err != nil {
		return 0, fmt.Errorf("storage: encode provides: %w", err)
	}
	requires, err := encodeList(n.Requires)
	if err != nil {
		return 0, fmt.Errorf("storage: encode requires: %w", err)
	}
	constraints, err := encodeList(n.Constraints)
	if err != nil {
		return 0, fmt.Errorf("storage: encode constraints: %w", err)
	}
	evidence, err := encodeList(n.Evidence)
	if err != nil {
		return 0, fmt.Errorf("storage: encode evidence: %w", err)
	}

	var parent sql.NullString
	if n.ParentID != nil && *n.ParentID != "" {
		parent = sql.NullString{String: *n.ParentID, Valid: true}
	}

	insertIntent := db.rebind(`INSERT INTO intents (id, agent_id, created_at, description, provides, requires,
		constraints, evidence, stability, computed_stability, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	insertIndex := db.rebind(`INSERT INTO intent_interfaces (intent_id, agent_id, normalized_name, role, tags)
		VALUES (?, ?, ?, ?, ?)`)

	err = WithRetry(ctx, db.maxRetries, db.retryDelay, func() error {
		tx, err := db.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin publish tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, insertIntent,
			n.ID, n.AgentID, formatTime(n.Timestamp), n.Description,
			provides, requires, constraints, evidence,
			n.Stability, computed, parent,
		); err != nil {
			return fmt.Errorf("storage: insert intent: %w", classifyWriteError(err))
		}

		for _, idx := range []struct {
			role  string
			specs []model.InterfaceSpec
		}{{roleProvides, n.Provides}, {roleRequires, n.Requires}} {
			for _, spec := range idx.specs {
				if _, err := tx.ExecContext(ctx, insertIndex,
					n.ID, n.AgentID, matching.NormalizeName(spec.Name), idx.role, strings.Join(spec.Tags, " "),
				); err != nil {
					return fmt.Errorf("storage: insert interface index: %w", err)
				}
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: commit publish tx: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return 0, err
	}

	span.SetAttributes(attribute.Float64("convergent.computed_stability", computed))
	db.publishedCounter.Add(ctx, 1)
	db.logger.Debug("storage: intent published",
		"intent_id", n.ID, "agent_id", n.AgentID, "computed_stability", computed)
	return computed, nil
}

// QueryAll returns every intent whose computed stability is at least
// minStability, oldest first.
func (db *DB) QueryAll(ctx context.Context, minStability float64) ([]model.IntentNode, error) {
	rows, err := db.sql.QueryContext(ctx, db.rebind(
		`SELECT `+intentColumns+` FROM intents
		 WHERE computed_stability >= ?
		 ORDER BY created_at ASC, id ASC`), minStability)
	if err != nil {
		return nil, fmt.Errorf("storage: query intents: %w", err)
	}
	return db.scanIntents(rows)
}

// QueryByAgent returns every intent published by agentID, oldest first.
func (db *DB) QueryByAgent(ctx context.Context, agentID string) ([]model.IntentNode, error) {
	rows, err := db.sql.QueryContext(ctx, db.rebind(
		`SELECT `+intentColumns+` FROM intents
		 WHERE agent_id = ?
		 ORDER BY created_at ASC, id ASC`), agentID)
	if err != nil {
		return nil, fmt.Errorf("storage: query intents by agent: %w", err)
	}
	return db.scanIntents(rows)
}

// QuerySince returns intents created strictly after since whose computed
// stability is at least minStability, oldest first.
func (db *DB) QuerySince(ctx context.Context, since time.Time, minStability float64) ([]model.IntentNode, error) {
	rows, err := db.sql.QueryContext(ctx, db.rebind(
		`SELECT `+intentColumns+` FROM intents
		 WHERE created_at > ? AND computed_stability >= ?
		 ORDER BY created_at ASC, id ASC`), formatTime(since), minStability)
	if err != nil {
		return nil, fmt.Errorf("storage: query intents since: %w", err)
	}
	return db.scanIntents(rows)
}

// GetIntent returns one intent by id, or ErrNotFound.
func (db *DB) GetIntent(ctx context.Context, id string) (model.IntentNode, error) {
	rows, err := db.sql.QueryContext(ctx, db.rebind(
		`SELECT `+intentColumns+` FROM intents WHERE id = ?`), id)
	if err != nil {
		return model.IntentNode{}, fmt.Errorf("storage: get intent: %w", err)
	}
	intents, err := db.scanIntents(rows)
	if err != nil {
		return model.IntentNode{}, err
	}
	if len(intents) == 0 {
		return model.IntentNode{}, fmt.Errorf("%w: intent %s", ErrNotFound, id)
	}
	return intents[0], nil
}

// Lineage returns the refinement chain ending at id: the intent itself, then
// its parent, then the parent's parent, and so on.
func (db *DB) Lineage(ctx context.Context, id string) ([]model.IntentNode, error) {
	var chain []model.IntentNode
	seen := make(map[string]bool)
	next := id
	for next != "" && !seen[next] {
		seen[next] = true
		n, err := db.GetIntent(ctx, next)
		if err != nil {
			if errors.Is(err, ErrNotFound) && len(chain) > 0 {
				break
			}
			return nil, err
		}
		chain = append(chain, n)
		next = ""
		if n.ParentID != nil {
			next = *n.ParentID
		}
	}
	return chain, nil
}

// Count returns the number of published intents.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM intents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count intents: %w", err)
	}
	return n, nil
}

// scanIntents drains and closes rows. JSON columns that fail to decode are
// logged and read as empty lists.
func (db *DB) scanIntents(rows *sql.Rows) ([]model.IntentNode, error) {
	defer func() { _ = rows.Close() }()

	var out []model.IntentNode
	for rows.Next() {
		var n model.IntentNode
		var createdAt, provides, requires, constraints, evidence string
		var parent sql.NullString
		if err := rows.Scan(
			&n.ID, &n.AgentID, &createdAt, &n.Description,
			&provides, &requires, &constraints, &evidence,
			&n.Stability, &parent,
		); err != nil {
			return nil, fmt.Errorf("storage: scan intent: %w", err)
		}

		ts, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			db.logger.Warn("storage: bad created_at", "intent_id", n.ID, "value", createdAt, "error", err)
		}
		n.Timestamp = ts

		n.Provides = decodeList[model.InterfaceSpec](db, n.ID, "provides", provides)
		n.Requires = decodeList[model.InterfaceSpec](db, n.ID, "requires", requires)
		n.Constraints = decodeList[model.Constraint](db, n.ID, "constraints", constraints)
		n.Evidence = decodeList[model.Evidence](db, n.ID, "evidence", evidence)
		if parent.Valid {
			p := parent.String
			n.ParentID = &p
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate intents: %w", err)
	}
	return out, nil
}

func encodeList[T any](items []T) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList[T any](db *DB, intentID, column, raw string) []T {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		db.logger.Warn("storage: undecodable column, reading as empty",
			"intent_id", intentID, "column", column, "error", err)
		return nil
	}
	return out
}
