// Package mdbxstore drives libmdbx through mdbx-go. MDBX admits a single
// write transaction per environment, so the exclusive lock on the empty
// table is taken as soon as a write transaction begins.
package mdbxstore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/Giulio2002/blockfirst"
)

// Name is the registry name of the store.
const Name = "mdbx"

const (
	maxDBs  = 10
	mapSize = 1 << 30
)

func init() {
	blockfirst.Register(Name, func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, opts)
	})
}

// Env wraps an mdbx environment.
type Env struct {
	env *mdbx.Env
	log *blockfirst.Logger
}

// Open creates or opens the environment file data.mdbx under opts.Dir.
// MDBX has no lock wait timeout: a writer waits for the previous one for as
// long as it takes, so opts.LockTimeout is ignored.
func Open(ctx context.Context, opts blockfirst.Options) (*Env, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}

	env, err := mdbx.NewEnv(mdbx.Label("blockfirst"))
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, maxDBs); err != nil {
		env.Close()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	if err := env.SetGeometry(-1, -1, mapSize, -1, -1, 4096); err != nil {
		env.Close()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	path := filepath.Join(opts.Dir, "data.mdbx")
	if err := env.Open(path, mdbx.NoSubdir|mdbx.NoMetaSync, 0644); err != nil {
		env.Close()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}

	log := opts.Logger
	if log == nil {
		log = blockfirst.NoopLogger()
	}
	log.Debug("mdbx environment opened", "path", path)
	return &Env{env: env, log: log}, nil
}

// Table is an mdbx named database.
type Table struct {
	name string
	dbi  mdbx.DBI
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// OpenTable creates the named database if needed and empties it.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	dbi, err := txn.OpenDBI(name, mdbx.Create, nil, nil)
	if err != nil {
		txn.Abort()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	if err := txn.Drop(dbi, false); err != nil {
		txn.Abort()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	if _, err := txn.Commit(); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	return &Table{name: name, dbi: dbi}, nil
}

// Begin starts a write transaction. It blocks while another write
// transaction is open. The caller must stay on the same OS thread until
// the transaction finishes.
func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, err
	}
	return &Txn{txn: txn}, nil
}

// Close closes the environment.
func (e *Env) Close() error {
	e.env.Close()
	return nil
}

// Txn is an mdbx write transaction.
type Txn struct {
	txn *mdbx.Txn
}

func (t *Txn) OpenCursor(tbl blockfirst.Table) (blockfirst.Cursor, error) {
	mt, ok := tbl.(*Table)
	if !ok {
		return nil, blockfirst.Errorf(blockfirst.ErrProtocol, "table %q is not an mdbx table", tbl.Name())
	}
	c, err := t.txn.OpenCursor(mt.dbi)
	if err != nil {
		return nil, err
	}
	return &Cursor{c: c}, nil
}

func (t *Txn) Commit() error {
	_, err := t.txn.Commit()
	return err
}

func (t *Txn) Abort() error {
	t.txn.Abort()
	return nil
}

// Cursor is an mdbx cursor.
type Cursor struct {
	c *mdbx.Cursor
}

// FirstForUpdate positions on the first key. The write transaction already
// holds the environment writer lock, which covers every key.
func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	k, v, err := c.c.Get(nil, nil, mdbx.First)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return blockfirst.ErrNotFoundError
		}
		return err
	}
	res.Set(k, v)
	return nil
}

func (c *Cursor) Close() error {
	c.c.Close()
	return nil
}
