package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/migrations"
)

func memoryDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := New(ctx, ":memory:", Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	return db
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect Dialect
		driver  string
		memory  bool
	}{
		{"postgres://u:p@localhost:5432/db", DialectPostgres, "pgx", false},
		{"postgresql://localhost/db", DialectPostgres, "pgx", false},
		{"", DialectSQLite, "sqlite", true},
		{":memory:", DialectSQLite, "sqlite", true},
		{"convergent.db", DialectSQLite, "sqlite", false},
		{"sqlite:///var/lib/convergent.db", DialectSQLite, "sqlite", false},
		{"file:graph.db", DialectSQLite, "sqlite", false},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := parseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, got.dialect)
			assert.Equal(t, tt.driver, got.driver)
			assert.Equal(t, tt.memory, got.memory)
		})
	}
}

func TestParseDSN_SQLiteSource(t *testing.T) {
	got, err := parseDSN("sqlite:///var/lib/convergent.db")
	require.NoError(t, err)
	assert.Equal(t, "file:/var/lib/convergent.db?"+sqlitePragmas+"&_pragma=journal_mode(WAL)", got.source)

	got, err = parseDSN("file:graph.db?cache=shared")
	require.NoError(t, err)
	assert.Equal(t, "file:graph.db?cache=shared&"+sqlitePragmas+"&_pragma=journal_mode(WAL)", got.source)

	_, err = parseDSN("sqlite://")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}
	q := `SELECT id FROM intents WHERE agent_id = ? AND computed_stability >= ?`

	assert.Equal(t, `SELECT id FROM intents WHERE agent_id = $1 AND computed_stability >= $2`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, "SELECT 1", pg.rebind("SELECT 1"))
}

func TestContains(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}

	assert.Equal(t, "strpos(ii.tags, $1) > 0", pg.rebind(pg.contains("ii.tags", "?")))
	assert.Equal(t, "instr(ii.tags, ?) > 0", lite.contains("ii.tags", "?"))
}

func TestOverlapCandidates_MatchesLiterally(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	stored := func(agent string, specs ...model.InterfaceSpec) string {
		n := model.NewIntent(agent, "d")
		n.Provides = specs
		_, err := db.Publish(ctx, n)
		require.NoError(t, err)
		return n.ID
	}
	backslash := stored("agent-a", model.NewInterfaceSpec("Widget", model.KindModel, "", `C:\src`, "win"))
	percent := stored("agent-b", model.NewInterfaceSpec("Gadget", model.KindModel, "", "100%", "pct"))
	stored("agent-c", model.NewInterfaceSpec("Gizmo", model.KindModel, "", "axb", "qqq"))

	got, err := db.overlapCandidates(ctx, []model.InterfaceSpec{
		model.NewInterfaceSpec("Other", model.KindModel, "", `C:\src`, "zzz"),
	}, "agent-x", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{backslash}, got)

	got, err = db.overlapCandidates(ctx, []model.InterfaceSpec{
		model.NewInterfaceSpec("Other", model.KindModel, "", "100%", "zzz"),
	}, "agent-x", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{percent}, got)

	// "_" and "%" are not wildcards.
	got, err = db.overlapCandidates(ctx, []model.InterfaceSpec{
		model.NewInterfaceSpec("Other", model.KindModel, "", "a_b", "q%q"),
	}, "agent-x", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetriable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetriable(errors.New("boom")))
	assert.False(t, isRetriable(nil))
}

func TestClassifyWriteError_Postgres(t *testing.T) {
	assert.ErrorIs(t, classifyWriteError(&pgconn.PgError{Code: "23505"}), ErrDuplicate)
	assert.ErrorIs(t, classifyWriteError(&pgconn.PgError{Code: "23503"}), ErrUnknownParent)

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), classifyWriteError(other))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := WithRetry(ctx, 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = WithRetry(ctx, 2, time.Millisecond, func() error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	attempts = 0
	boom := errors.New("boom")
	err = WithRetry(ctx, 5, time.Millisecond, func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts, "non-retriable errors return immediately")
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, 3, time.Second, func() error {
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublish_IndexesEverySpec(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	n := model.NewIntent("agent-a", "auth")
	n.Provides = []model.InterfaceSpec{
		model.NewInterfaceSpec("UserModel", model.KindModel, "", "user", "auth"),
		model.NewInterfaceSpec("AuthService", model.KindClass, ""),
	}
	n.Requires = []model.InterfaceSpec{model.NewInterfaceSpec("MealPlanService", model.KindClass, "")}
	_, err := db.Publish(ctx, n)
	require.NoError(t, err)

	rows, err := db.sql.QueryContext(ctx,
		`SELECT normalized_name, role, tags FROM intent_interfaces WHERE intent_id = ? ORDER BY role, normalized_name`, n.ID)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	type indexRow struct{ name, role, tags string }
	var got []indexRow
	for rows.Next() {
		var r indexRow
		require.NoError(t, rows.Scan(&r.name, &r.role, &r.tags))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []indexRow{
		{"auth", roleProvides, ""},
		{"user", roleProvides, "user auth"},
		{"meal plan", roleRequires, ""},
	}, got)
}

func TestScan_UndecodableColumnReadsEmpty(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	n := model.NewIntent("agent-a", "auth")
	n.Provides = []model.InterfaceSpec{model.NewInterfaceSpec("User", model.KindModel, "")}
	_, err := db.Publish(ctx, n)
	require.NoError(t, err)

	_, err = db.sql.ExecContext(ctx, `UPDATE intents SET provides = 'not json' WHERE id = ?`, n.ID)
	require.NoError(t, err)

	got, err := db.GetIntent(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Provides)
	assert.Equal(t, "auth", got.Description)
}

func TestFormatTime_SortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2026, 1, 1, 0, 0, 0, 40, time.UTC)
	c := time.Date(2026, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Less(t, formatTime(a), formatTime(b))
	assert.Equal(t, formatTime(c), formatTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, formatTime(a), len(formatTime(b)))
}
