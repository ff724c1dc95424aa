package sqlstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/Giulio2002/blockfirst"
)

func init() {
	blockfirst.Register("mysql", func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, MySQLDialect{}, opts)
	})
}

// erLockWaitTimeout is ER_LOCK_WAIT_TIMEOUT.
const erLockWaitTimeout = 1205

// MySQLDialect targets InnoDB. A locking read on an empty table takes a gap
// lock on the supremum, and gap locks never conflict with each other, so
// the exclusive lock comes from the guard row.
type MySQLDialect struct{}

func (MySQLDialect) DriverName() string { return "mysql" }

// BuildDSN parses opts.DSN and sets innodb_lock_wait_timeout for every
// session. InnoDB counts the timeout in whole seconds, with a minimum of 1.
func (MySQLDialect) BuildDSN(opts blockfirst.Options) (string, error) {
	if opts.DSN == "" {
		return "", errors.New("mysql: dsn is required")
	}
	cfg, err := mysqldriver.ParseDSN(opts.DSN)
	if err != nil {
		return "", err
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	secs := max((timeoutMillis(opts.LockTimeout)+999)/1000, 1)
	cfg.Params["innodb_lock_wait_timeout"] = strconv.FormatInt(secs, 10)
	return cfg.FormatDSN(), nil
}

func (MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDialect) Placeholder(n int) string { return "?" }

func (MySQLDialect) CreateTableQuery(table string) string {
	return "CREATE TABLE " + table + " (k VARBINARY(255) NOT NULL PRIMARY KEY, v LONGBLOB NOT NULL) ENGINE=InnoDB"
}

func (MySQLDialect) CreateGuardQuery() string {
	return "CREATE TABLE IF NOT EXISTS " + GuardTable + " (name VARCHAR(255) NOT NULL PRIMARY KEY) ENGINE=InnoDB"
}

func (d MySQLDialect) InsertGuardQuery() string {
	return "INSERT IGNORE INTO " + GuardTable + " (name) VALUES (" + d.Placeholder(1) + ")"
}

func (d MySQLDialect) LockGuardQuery() string {
	return "SELECT name FROM " + GuardTable + " WHERE name = " + d.Placeholder(1) + " FOR UPDATE"
}

func (MySQLDialect) FirstQuery(table string) string {
	return "SELECT k, v FROM " + table + " ORDER BY k LIMIT 1 FOR UPDATE"
}

func (MySQLDialect) IsLockTimeout(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == erLockWaitTimeout
}
