// Package boltstore drives bbolt. bbolt serializes read-write transactions
// behind a single writer lock, which DB.Begin(true) takes before returning.
package boltstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/blockfirst"
)

// Name is the registry name of the store.
const Name = "bolt"

func init() {
	blockfirst.Register(Name, func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, opts)
	})
}

// Env wraps a bbolt database.
type Env struct {
	db  *bolt.DB
	log *blockfirst.Logger
}

// Open opens data.bolt under opts.Dir. opts.LockTimeout bounds the wait for
// the file lock only; bbolt has no timeout on its writer lock.
func Open(ctx context.Context, opts blockfirst.Options) (*Env, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	path := filepath.Join(opts.Dir, "data.bolt")
	db, err := bolt.Open(path, 0644, &bolt.Options{
		Timeout:        opts.LockTimeout,
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	log := opts.Logger
	if log == nil {
		log = blockfirst.NoopLogger()
	}
	log.Debug("bolt database opened", "path", path)
	return &Env{db: db, log: log}, nil
}

// Table is a bbolt bucket name.
type Table struct {
	name []byte
}

func (t *Table) Name() string { return string(t.name) }

// OpenTable drops and recreates the bucket.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	bucket := []byte(name)
	err := e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucket)
		return err
	})
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	return &Table{name: bucket}, nil
}

// Begin starts a read-write transaction, waiting for the current writer.
func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	tx, err := e.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &Txn{tx: tx}, nil
}

func (e *Env) Close() error {
	return e.db.Close()
}

// Txn is a bbolt read-write transaction.
type Txn struct {
	tx *bolt.Tx
}

func (t *Txn) OpenCursor(tbl blockfirst.Table) (blockfirst.Cursor, error) {
	bt, ok := tbl.(*Table)
	if !ok {
		return nil, blockfirst.Errorf(blockfirst.ErrProtocol, "table %q is not a bolt bucket", tbl.Name())
	}
	b := t.tx.Bucket(bt.name)
	if b == nil {
		return nil, bolt.ErrBucketNotFound
	}
	return &Cursor{c: b.Cursor()}, nil
}

func (t *Txn) Commit() error { return t.tx.Commit() }

func (t *Txn) Abort() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, bolt.ErrTxClosed) {
		return err
	}
	return nil
}

// Cursor is a bbolt bucket cursor. bbolt cursors need no release, so Close
// only marks the cursor unusable.
type Cursor struct {
	c *bolt.Cursor
}

func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	if c.c == nil {
		return errCursorClosed
	}
	k, v := c.c.First()
	if k == nil {
		return blockfirst.ErrNotFoundError
	}
	res.Set(k, v)
	return nil
}

func (c *Cursor) Close() error {
	c.c = nil
	return nil
}

var errCursorClosed = errors.New("boltstore: cursor closed")
