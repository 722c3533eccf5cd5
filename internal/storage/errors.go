package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a requested intent does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidIntent is returned by Publish for an intent missing its id or agent.
var ErrInvalidIntent = errors.New("storage: invalid intent")

// ErrDuplicate is returned by Publish when the intent id is already taken.
// Published intents are immutable; publish a refinement with a new id instead.
var ErrDuplicate = errors.New("storage: intent already exists")

// ErrUnknownParent is returned by Publish when parent_id names no published intent.
var ErrUnknownParent = errors.New("storage: parent intent not found")

// classifyWriteError maps constraint violations from either dialect onto the
// sentinel errors above, keeping the driver error in the chain.
func classifyWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %w", ErrUnknownParent, err)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"), strings.Contains(msg, "PRIMARY KEY"):
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %w", ErrUnknownParent, err)
		}
	}
	return err
}
