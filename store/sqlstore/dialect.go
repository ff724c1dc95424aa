package sqlstore

import (
	"strings"
	"time"

	"github.com/Giulio2002/blockfirst"
)

// GuardTable holds one row per harness table. Locking that row serializes
// transactions on servers whose locking reads take no conflicting lock on
// an empty range.
const GuardTable = "blockfirst_guard"

// Dialect captures what differs between SQL databases.
type Dialect interface {
	// DriverName returns the database/sql driver name.
	DriverName() string

	// BuildDSN constructs the driver connection string. The lock timeout is
	// applied to every session through it.
	BuildDSN(opts blockfirst.Options) (string, error)

	// QuoteIdentifier wraps a table name in dialect-specific quoting.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the n-th parameter
	// (1-based).
	Placeholder(n int) string

	// CreateTableQuery returns DDL for a key/value table.
	CreateTableQuery(table string) string

	// CreateGuardQuery returns DDL for the guard table.
	CreateGuardQuery() string

	// InsertGuardQuery returns an insert of one guard row that is a no-op
	// when the row exists. It takes the table name as parameter.
	InsertGuardQuery() string

	// LockGuardQuery returns a locking read of one guard row, or "" when
	// beginning a transaction already excludes every other writer.
	LockGuardQuery() string

	// FirstQuery returns a locking read of the smallest key of table.
	FirstQuery(table string) string

	// IsLockTimeout reports whether err is the server giving up on a lock
	// wait.
	IsLockTimeout(err error) bool
}

// timeoutMillis rounds d up to whole milliseconds.
func timeoutMillis(d time.Duration) int64 {
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
