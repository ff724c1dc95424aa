//go:build rocksdb

// Package rocksstore drives a RocksDB TransactionDB through gorocksdb. It
// needs librocksdb at build time, hence the rocksdb build tag.
//
// RocksDB locks keys, not ranges. Each table owns a guard key that every
// seek locks with GetForUpdate before scanning, which gives the scan the
// table-wide exclusive lock.
package rocksstore

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/tecbot/gorocksdb"

	"github.com/Giulio2002/blockfirst"
)

// Name is the registry name of the store.
const Name = "rocksdb"

func init() {
	blockfirst.Register(Name, func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, opts)
	})
}

// Env wraps a TransactionDB and the options it keeps alive.
type Env struct {
	db   *gorocksdb.TransactionDB
	opts *gorocksdb.Options
	tdbo *gorocksdb.TransactionDBOptions
	wo   *gorocksdb.WriteOptions
	ro   *gorocksdb.ReadOptions
	to   *gorocksdb.TransactionOptions
}

// Open opens a TransactionDB in opts.Dir. opts.LockTimeout becomes the
// key lock wait timeout of every transaction.
func Open(ctx context.Context, opts blockfirst.Options) (*Env, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	ms := opts.LockTimeout.Milliseconds()
	if ms <= 0 {
		ms = -1 // wait forever
	}

	e := &Env{
		opts: gorocksdb.NewDefaultOptions(),
		tdbo: gorocksdb.NewDefaultTransactionDBOptions(),
		wo:   gorocksdb.NewDefaultWriteOptions(),
		ro:   gorocksdb.NewDefaultReadOptions(),
		to:   gorocksdb.NewDefaultTransactionOptions(),
	}
	e.opts.SetCreateIfMissing(true)
	e.tdbo.SetTransactionLockTimeout(ms)
	e.to.SetLockTimeout(ms)

	db, err := gorocksdb.OpenTransactionDb(e.opts, e.tdbo, opts.Dir)
	if err != nil {
		e.destroy()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	e.db = db
	if opts.Logger != nil {
		opts.Logger.Debug("rocksdb transaction db opened", "path", opts.Dir)
	}
	return e, nil
}

func (e *Env) destroy() {
	e.to.Destroy()
	e.ro.Destroy()
	e.wo.Destroy()
	e.tdbo.Destroy()
	e.opts.Destroy()
}

// Table is a key prefix plus its guard key.
type Table struct {
	name   string
	prefix []byte
	guard  []byte
}

func (t *Table) Name() string { return t.name }

// OpenTable deletes every key under the table prefix and writes the guard
// key.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	t := &Table{
		name:   name,
		prefix: []byte("t/" + name + "/"),
		guard:  []byte("g/" + name),
	}
	txn := e.db.TransactionBegin(e.wo, e.to, nil)
	defer txn.Destroy()

	it := txn.NewIterator(e.ro)
	for it.Seek(t.prefix); it.ValidForPrefix(t.prefix); it.Next() {
		k := it.Key()
		err := txn.Delete(append([]byte(nil), k.Data()...))
		k.Free()
		if err != nil {
			it.Close()
			txn.Rollback()
			return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
		}
	}
	err := it.Err()
	it.Close()
	if err == nil {
		err = txn.Put(t.guard, nil)
	}
	if err == nil {
		err = txn.Commit()
	}
	if err != nil {
		txn.Rollback()
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	return t, nil
}

func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	return &Txn{env: e, txn: e.db.TransactionBegin(e.wo, e.to, nil)}, nil
}

func (e *Env) Close() error {
	e.db.Close()
	e.destroy()
	return nil
}

// Txn is a pessimistic RocksDB transaction.
type Txn struct {
	env  *Env
	txn  *gorocksdb.Transaction
	done bool
}

func (t *Txn) OpenCursor(tbl blockfirst.Table) (blockfirst.Cursor, error) {
	rt, ok := tbl.(*Table)
	if !ok {
		return nil, blockfirst.Errorf(blockfirst.ErrProtocol, "table %q is not a rocksdb table", tbl.Name())
	}
	return &Cursor{txn: t, table: rt}, nil
}

var errTxnDone = errors.New("rocksstore: transaction already finished")

func (t *Txn) Commit() error {
	if t.done {
		return errTxnDone
	}
	err := t.txn.Commit()
	if err != nil {
		return mapErr(err)
	}
	t.done = true
	t.txn.Destroy()
	return nil
}

func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.txn.Rollback()
	t.txn.Destroy()
	return err
}

// Cursor scans one table prefix inside its transaction.
type Cursor struct {
	txn   *Txn
	table *Table
}

// FirstForUpdate locks the table guard key, then seeks to the first key
// under the table prefix.
func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	g, err := c.txn.txn.GetForUpdate(c.txn.env.ro, c.table.guard)
	if err != nil {
		return mapErr(err)
	}
	g.Free()

	it := c.txn.txn.NewIterator(c.txn.env.ro)
	defer it.Close()
	it.Seek(c.table.prefix)
	if !it.ValidForPrefix(c.table.prefix) {
		if err := it.Err(); err != nil {
			return err
		}
		return blockfirst.ErrNotFoundError
	}
	k, v := it.Key(), it.Value()
	res.Set(k.Data()[len(c.table.prefix):], v.Data())
	k.Free()
	v.Free()
	return nil
}

func (c *Cursor) Close() error { return nil }

// mapErr recognizes RocksDB's lock wait timeout status.
func mapErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "Timeout waiting to lock key") {
		return blockfirst.WrapError(blockfirst.ErrLockTimeout, err)
	}
	return err
}
