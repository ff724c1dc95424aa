// Package memstore is an in-process transactional store with a real range
// lock table. It is the reference implementation of the contract the
// harness verifies, and it can inject faults so the harness's own failure
// paths can be exercised without a broken database.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Giulio2002/blockfirst"
)

// Name is the registry name of the store.
const Name = "mem"

func init() {
	blockfirst.Register(Name, func(ctx context.Context, opts blockfirst.Options) (blockfirst.Env, error) {
		return Open(Config{LockTimeout: opts.LockTimeout}), nil
	})
}

var (
	errClosed       = errors.New("memstore: environment closed")
	errTxnDone      = errors.New("memstore: transaction already finished")
	errCursorClosed = errors.New("memstore: cursor already closed")
	errCursorsOpen  = errors.New("memstore: commit with open cursors")
	errForeignTable = errors.New("memstore: table belongs to another environment")
	errUnknownTable = errors.New("memstore: unknown table")
	phantomKey      = []byte("phantom")
	phantomValue    = []byte("row")
)

// Faults make the store misbehave in controlled ways.
type Faults struct {
	// PhantomRow makes FirstForUpdate report a row on an empty table.
	PhantomRow bool

	// SkipLock makes FirstForUpdate return without taking any lock.
	SkipLock bool

	// SeekErr, when set, is returned by FirstForUpdate.
	SeekErr error

	// BeginErr, when set, is returned by Begin.
	BeginErr error

	// CloseErr, when set, is returned by Cursor.Close.
	CloseErr error

	// CommitErr, when set, is returned by Commit. The transaction keeps its
	// locks until it is aborted.
	CommitErr error

	// FailAfter delays every fault above until this many transactions have
	// begun successfully.
	FailAfter uint64
}

// Config configures an Env.
type Config struct {
	// LockTimeout bounds lock waits. Zero waits forever.
	LockTimeout time.Duration

	Faults Faults
}

type kv struct {
	key []byte
	val []byte
}

// Table is a sorted in-memory table.
type Table struct {
	env  *Env
	name string
	rows []kv // sorted by key
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Env is an in-memory store environment. It is safe for concurrent use.
type Env struct {
	mu     sync.RWMutex
	tables map[string]*Table
	closed bool

	locks  *lockTable
	faults Faults
	txnSeq atomic.Uint64
}

// Open creates an empty environment.
func Open(cfg Config) *Env {
	return &Env{
		tables: make(map[string]*Table),
		locks:  newLockTable(cfg.LockTimeout),
		faults: cfg.Faults,
	}
}

// OpenTable creates name fresh and empty, dropping any previous content.
func (e *Env) OpenTable(ctx context.Context, name string) (blockfirst.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errClosed
	}
	t := &Table{env: e, name: name}
	e.tables[name] = t
	return t, nil
}

// Put inserts or replaces a row outside of any transaction.
func (e *Env) Put(table string, key, val []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[table]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownTable, table)
	}
	row := kv{key: bytes.Clone(key), val: bytes.Clone(val)}
	i := sort.Search(len(t.rows), func(i int) bool { return bytes.Compare(t.rows[i].key, key) >= 0 })
	if i < len(t.rows) && bytes.Equal(t.rows[i].key, key) {
		t.rows[i] = row
		return nil
	}
	t.rows = append(t.rows, kv{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
	return nil
}

// LockWaits returns how many lock requests had to wait for another holder.
func (e *Env) LockWaits() uint64 { return e.locks.waitCount() }

// LocksHeld returns the number of range locks currently granted.
func (e *Env) LocksHeld() int { return e.locks.heldCount() }

// Begin starts a transaction.
func (e *Env) Begin(ctx context.Context) (blockfirst.Txn, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errClosed
	}
	id := e.txnSeq.Add(1)
	txn := &Txn{env: e, id: id, ctx: ctx, faulty: id > e.faults.FailAfter}
	if txn.faulty && e.faults.BeginErr != nil {
		return nil, e.faults.BeginErr
	}
	return txn, nil
}

// Close marks the environment closed.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Txn is a memstore transaction.
type Txn struct {
	env     *Env
	id      uint64
	ctx     context.Context
	faulty  bool
	cursors int
	done    bool
}

// OpenCursor opens a cursor over t.
func (txn *Txn) OpenCursor(t blockfirst.Table) (blockfirst.Cursor, error) {
	if txn.done {
		return nil, errTxnDone
	}
	tbl, ok := t.(*Table)
	if !ok || tbl.env != txn.env {
		return nil, errForeignTable
	}
	txn.cursors++
	return &Cursor{txn: txn, table: tbl}, nil
}

// Commit releases the transaction's locks. It fails if a cursor is still
// open.
func (txn *Txn) Commit() error {
	if txn.done {
		return errTxnDone
	}
	if txn.cursors > 0 {
		return errCursorsOpen
	}
	if txn.faulty && txn.env.faults.CommitErr != nil {
		return txn.env.faults.CommitErr
	}
	txn.finish()
	return nil
}

// Abort releases the transaction's locks.
func (txn *Txn) Abort() error {
	if txn.done {
		return errTxnDone
	}
	txn.finish()
	return nil
}

func (txn *Txn) finish() {
	txn.done = true
	txn.cursors = 0
	txn.env.locks.releaseAll(txn.id)
}

// Cursor is a memstore cursor.
type Cursor struct {
	txn    *Txn
	table  *Table
	closed bool
}

// FirstForUpdate locks (-inf, first key] and copies the first pair into
// res, or locks (-inf, +inf) and returns not found on an empty table.
func (c *Cursor) FirstForUpdate(res *blockfirst.Result) error {
	if c.closed {
		return errCursorClosed
	}
	f := c.txn.env.faults
	if c.txn.faulty && f.SeekErr != nil {
		return f.SeekErr
	}

	c.txn.env.mu.RLock()
	var first *kv
	if len(c.table.rows) > 0 {
		row := c.table.rows[0]
		first = &row
	}
	c.txn.env.mu.RUnlock()

	r := fullRange
	if first != nil {
		r = upTo(first.key)
	}
	if !(c.txn.faulty && f.SkipLock) {
		if err := c.txn.env.locks.acquire(c.txn.ctx, c.txn.id, c.table.name, r); err != nil {
			return err
		}
	}

	switch {
	case c.txn.faulty && f.PhantomRow:
		res.Set(phantomKey, phantomValue)
		return nil
	case first == nil:
		return blockfirst.ErrNotFoundError
	default:
		res.Set(first.key, first.val)
		return nil
	}
}

// Close closes the cursor.
func (c *Cursor) Close() error {
	if c.closed {
		return errCursorClosed
	}
	c.closed = true
	if c.txn.cursors > 0 {
		c.txn.cursors--
	}
	if c.txn.faulty && c.txn.env.faults.CloseErr != nil {
		return c.txn.env.faults.CloseErr
	}
	return nil
}
