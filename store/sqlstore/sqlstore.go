// Package sqlstore drives SQL databases through database/sql. The locking
// seek is SELECT ... FOR UPDATE on the first row, backed by a lock on a
// per-table guard row where the server would otherwise let two empty-range
// locks coexist.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Giulio2002/blockfirst"
)

// Env is a pooled database handle.
type Env struct {
	db      *sql.DB
	dialect Dialect
	log     *blockfirst.Logger
}

// Open connects with dialect and verifies the connection.
func Open(ctx context.Context, dialect Dialect, opts blockfirst.Options) (*Env, error) {
	dsn, err := dialect.BuildDSN(opts)
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, fmt.Errorf("ping %s: %w", dialect.DriverName(), err))
	}
	log := opts.Logger
	if log == nil {
		log = blockfirst.NoopLogger()
	}
	log.Debug("sql database opened", "driver", dialect.DriverName())
	return &Env{db: db, dialect: dialect, log: log}, nil
}

// Table is a key/value table.
type Table struct {
	name  string
	first string // locking read of the first row
	guard string // locking read of the guard row, may be empty
}

func (t *Table) Name() string { return t.name }

// OpenTable drops and recreates the table and makes sure its guard row
// exists.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	qt := e.dialect.QuoteIdentifier(name)
	stmts := []string{
		"DROP TABLE IF EXISTS " + qt,
		e.dialect.CreateTableQuery(qt),
		e.dialect.CreateGuardQuery(),
	}
	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return nil, blockfirst.WrapError(blockfirst.ErrSetup, fmt.Errorf("%s: %w", stmt, err))
		}
	}
	if _, err := e.db.ExecContext(ctx, e.dialect.InsertGuardQuery(), name); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, fmt.Errorf("insert guard row: %w", err))
	}
	return &Table{
		name:  name,
		first: e.dialect.FirstQuery(qt),
		guard: e.dialect.LockGuardQuery(),
	}, nil
}

// Begin starts a transaction on a dedicated pooled connection.
func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.mapErr(err)
	}
	return &Txn{env: e, ctx: ctx, tx: tx}, nil
}

func (e *Env) Close() error { return e.db.Close() }

func (e *Env) mapErr(err error) error {
	if e.dialect.IsLockTimeout(err) {
		return blockfirst.WrapError(blockfirst.ErrLockTimeout, err)
	}
	return err
}

// Txn is a database/sql transaction.
type Txn struct {
	env *Env
	ctx context.Context
	tx  *sql.Tx
}

func (t *Txn) OpenCursor(tbl blockfirst.Table) (blockfirst.Cursor, error) {
	st, ok := tbl.(*Table)
	if !ok {
		return nil, blockfirst.Errorf(blockfirst.ErrProtocol, "table %q is not a sql table", tbl.Name())
	}
	return &Cursor{txn: t, table: st}, nil
}

func (t *Txn) Commit() error { return t.env.mapErr(t.tx.Commit()) }

func (t *Txn) Abort() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Cursor runs locking reads inside its transaction.
type Cursor struct {
	txn    *Txn
	table  *Table
	closed bool
}

var errCursorClosed = errors.New("sqlstore: cursor closed")

func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	if c.closed {
		return errCursorClosed
	}
	if c.table.guard != "" {
		var name string
		err := c.txn.tx.QueryRowContext(c.txn.ctx, c.table.guard, c.table.name).Scan(&name)
		if err != nil {
			return c.txn.env.mapErr(fmt.Errorf("lock guard row: %w", err))
		}
	}

	var k, v []byte
	err := c.txn.tx.QueryRowContext(c.txn.ctx, c.table.first).Scan(&k, &v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return blockfirst.ErrNotFoundError
	case err != nil:
		return c.txn.env.mapErr(err)
	}
	res.Set(k, v)
	return nil
}

func (c *Cursor) Close() error {
	c.closed = true
	return nil
}
