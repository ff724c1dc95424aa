// Package badgerstore drives Badger. Badger transactions are optimistic:
// reads take no locks and conflicts surface only at commit, so a seek on
// the empty table never excludes a concurrent one. The store is registered
// as a negative control that a correct run must reject.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Giulio2002/blockfirst"
)

// Name is the registry name of the store.
const Name = "badger"

func init() {
	blockfirst.Register(Name, func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(ctx, opts)
	})
}

// Env wraps a Badger database.
type Env struct {
	db *badger.DB
}

// Open opens the database in opts.Dir, or in memory when Dir is empty.
func Open(ctx context.Context, opts blockfirst.Options) (*Env, error) {
	var bopts badger.Options
	if opts.Dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Dir)
	}
	log := opts.Logger
	if log == nil {
		log = blockfirst.NoopLogger()
	}
	bopts = bopts.WithSyncWrites(false).WithLogger(slogAdapter{log.WithStore(Name)})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	return &Env{db: db}, nil
}

// Table is a key prefix.
type Table struct {
	name   string
	prefix []byte
}

func (t *Table) Name() string { return t.name }

// OpenTable drops every key under the table prefix.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	prefix := []byte(name + "/")
	if err := e.db.DropPrefix(prefix); err != nil {
		return nil, blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	return &Table{name: name, prefix: prefix}, nil
}

func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	return &Txn{txn: e.db.NewTransaction(true)}, nil
}

func (e *Env) Close() error { return e.db.Close() }

// put writes one row under t. It is used to seed tables in tests.
func (e *Env) put(t *Table, key, val []byte) error {
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(append([]byte{}, t.prefix...), key...), val)
	})
}

// Txn is a Badger read-write transaction.
type Txn struct {
	txn  *badger.Txn
	done bool
}

func (t *Txn) OpenCursor(tbl blockfirst.Table) (blockfirst.Cursor, error) {
	bt, ok := tbl.(*Table)
	if !ok {
		return nil, blockfirst.Errorf(blockfirst.ErrProtocol, "table %q is not a badger table", tbl.Name())
	}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = bt.prefix
	return &Cursor{it: t.txn.NewIterator(opts), prefix: bt.prefix}, nil
}

func (t *Txn) Commit() error {
	if t.done {
		return errTxnDone
	}
	t.done = true
	return t.txn.Commit()
}

func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

var errTxnDone = errors.New("badgerstore: transaction already finished")

// Cursor is a Badger prefix iterator.
type Cursor struct {
	it     *badger.Iterator
	prefix []byte
}

// FirstForUpdate rewinds to the first key under the table prefix. Nothing
// is locked.
func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	c.it.Rewind()
	if !c.it.Valid() {
		return blockfirst.ErrNotFoundError
	}
	item := c.it.Item()
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	res.Set(item.Key()[len(c.prefix):], val)
	return nil
}

func (c *Cursor) Close() error {
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
	return nil
}

// slogAdapter routes Badger's printf-style logging into the harness logger.
type slogAdapter struct {
	log *blockfirst.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.log.Error(line(format, args))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.log.Warn(line(format, args))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.log.Debug(line(format, args))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.log.Debug(line(format, args))
}

func line(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
