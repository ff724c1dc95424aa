package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/Giulio2002/blockfirst"
)

func init() {
	blockfirst.Register("postgres", func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, PostgresDialect{}, opts)
	})
}

// lockNotAvailable is SQLSTATE 55P03, raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// PostgresDialect relies on the guard row: PostgreSQL has no predicate
// locks for SELECT ... FOR UPDATE, so an empty result locks nothing.
type PostgresDialect struct{}

func (PostgresDialect) DriverName() string { return "postgres" }

// BuildDSN accepts a URL or a key=value connection string and adds
// lock_timeout as a session parameter.
func (PostgresDialect) BuildDSN(opts blockfirst.Options) (string, error) {
	dsn := opts.DSN
	if dsn == "" {
		return "", errors.New("postgres: dsn is required")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		parsed, err := pq.ParseURL(dsn)
		if err != nil {
			return "", err
		}
		dsn = parsed
	}
	return fmt.Sprintf("%s lock_timeout=%d", dsn, timeoutMillis(opts.LockTimeout)), nil
}

func (PostgresDialect) QuoteIdentifier(name string) string { return quoteDouble(name) }

func (PostgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (PostgresDialect) CreateTableQuery(table string) string {
	return "CREATE TABLE " + table + " (k BYTEA PRIMARY KEY, v BYTEA NOT NULL)"
}

func (PostgresDialect) CreateGuardQuery() string {
	return "CREATE TABLE IF NOT EXISTS " + GuardTable + " (name TEXT PRIMARY KEY)"
}

func (d PostgresDialect) InsertGuardQuery() string {
	return "INSERT INTO " + GuardTable + " (name) VALUES (" + d.Placeholder(1) + ") ON CONFLICT DO NOTHING"
}

func (d PostgresDialect) LockGuardQuery() string {
	return "SELECT name FROM " + GuardTable + " WHERE name = " + d.Placeholder(1) + " FOR UPDATE"
}

func (PostgresDialect) FirstQuery(table string) string {
	return "SELECT k, v FROM " + table + " ORDER BY k LIMIT 1 FOR UPDATE"
}

func (PostgresDialect) IsLockTimeout(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == lockNotAvailable
}
