package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Giulio2002/blockfirst"
)

func init() {
	blockfirst.Register("sqlite", func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, SQLiteDialect{}, opts)
	})
}

// SQLiteDialect begins every transaction with BEGIN IMMEDIATE, which takes
// the database write lock up front, so no guard row is needed. Waiting
// writers retry for the busy timeout before failing with SQLITE_BUSY.
type SQLiteDialect struct{}

func (SQLiteDialect) DriverName() string { return "sqlite" }

// BuildDSN opens data.sqlite under opts.Dir unless opts.DSN names a file.
func (SQLiteDialect) BuildDSN(opts blockfirst.Options) (string, error) {
	path := opts.DSN
	if path == "" {
		if opts.Dir == "" {
			return "", errors.New("sqlite: need a directory or a database path")
		}
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return "", err
		}
		path = filepath.Join(opts.Dir, "data.sqlite")
	}
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeoutMillis(opts.LockTimeout)))
	return "file:" + path + "?" + q.Encode(), nil
}

func (SQLiteDialect) QuoteIdentifier(name string) string { return quoteDouble(name) }

func (SQLiteDialect) Placeholder(n int) string { return "?" }

func (SQLiteDialect) CreateTableQuery(table string) string {
	return "CREATE TABLE " + table + " (k BLOB PRIMARY KEY, v BLOB NOT NULL)"
}

func (SQLiteDialect) CreateGuardQuery() string {
	return "CREATE TABLE IF NOT EXISTS " + GuardTable + " (name TEXT PRIMARY KEY)"
}

func (d SQLiteDialect) InsertGuardQuery() string {
	return "INSERT OR IGNORE INTO " + GuardTable + " (name) VALUES (" + d.Placeholder(1) + ")"
}

func (SQLiteDialect) LockGuardQuery() string { return "" }

func (SQLiteDialect) FirstQuery(table string) string {
	return "SELECT k, v FROM " + table + " ORDER BY k LIMIT 1"
}

func (SQLiteDialect) IsLockTimeout(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
