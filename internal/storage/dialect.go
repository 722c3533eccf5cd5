package storage

import (
	"errors"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver
)

// Dialect identifies the SQL database behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// sqlitePragmas are applied to every SQLite connection.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

type dsnTarget struct {
	dialect Dialect
	driver  string
	source  string
	memory  bool
}

// parseDSN maps a DSN onto a driver. postgres:// and postgresql:// URLs go to
// pgx. ":memory:" or an empty string opens a private in-memory SQLite
// database. Anything else, optionally prefixed with sqlite:// or file:, is a
// SQLite file path.
func parseDSN(dsn string) (dsnTarget, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dsnTarget{dialect: DialectPostgres, driver: "pgx", source: dsn}, nil
	case dsn == "", dsn == ":memory:", dsn == "sqlite://:memory:":
		return dsnTarget{
			dialect: DialectSQLite,
			driver:  "sqlite",
			source:  "file::memory:?" + sqlitePragmas,
			memory:  true,
		}, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return dsnTarget{}, errors.New("storage: empty sqlite path in DSN")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return dsnTarget{
		dialect: DialectSQLite,
		driver:  "sqlite",
		source:  "file:" + path + sep + sqlitePragmas + "&_pragma=journal_mode(WAL)",
	}, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL. Queries in
// this package never contain a literal question mark.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// contains returns a predicate that is true when needle occurs in haystack as
// a literal substring. No character in either operand is a wildcard or escape.
func (db *DB) contains(haystack, needle string) string {
	if db.dialect == DialectPostgres {
		return "strpos(" + haystack + ", " + needle + ") > 0"
	}
	return "instr(" + haystack + ", " + needle + ") > 0"
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
