package blockfirst

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Env is an open transactional store environment. Env must be safe for
// concurrent use: every worker begins its transactions on the same Env.
type Env interface {
	// OpenTable creates the named table fresh and empty and returns a handle
	// usable from any transaction.
	OpenTable(ctx context.Context, name string) (Table, error)

	// Begin starts a read-write transaction. It may block while another
	// transaction holds a conflicting lock.
	Begin(ctx context.Context) (Txn, error)

	// Close releases the environment. All transactions must be finished.
	Close() error
}

// Table is an opaque table handle returned by Env.OpenTable.
type Table interface {
	Name() string
}

// Txn is a read-write transaction. A Txn is owned by one goroutine and is
// never used again after Commit or Abort.
type Txn interface {
	// OpenCursor opens a cursor over t bound to this transaction.
	OpenCursor(t Table) (Cursor, error)

	// Commit commits the transaction and releases every lock it holds.
	Commit() error

	// Abort discards the transaction and releases every lock it holds.
	Abort() error
}

// Cursor is a cursor bound to one transaction and one table. It must be
// closed before its transaction finishes.
type Cursor interface {
	// FirstForUpdate positions the cursor on the first key of the table
	// while taking an exclusive lock on the range from -inf up to that key,
	// or on (-inf, +inf) when the table is empty. It returns an error
	// satisfying IsNotFound on an empty table and leaves res untouched;
	// otherwise it copies the found pair into res and returns nil.
	FirstForUpdate(res *Result) error

	// Close releases the cursor. Locks stay with the transaction.
	Close() error
}

// Options configure how a store is opened.
type Options struct {
	// Dir is the directory holding the store files, for embedded stores.
	Dir string

	// DSN is the connection string, for networked stores.
	DSN string

	// LockTimeout bounds how long the store waits for a conflicting lock
	// before failing the request.
	LockTimeout time.Duration

	Logger *Logger
}

// Opener opens a store environment.
type Opener func(ctx context.Context, opts Options) (Env, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Opener)
)

// Register makes a store available under name. It panics if name is
// registered twice or opener is nil.
func Register(name string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if opener == nil {
		panic("blockfirst: Register opener is nil")
	}
	if _, dup := registry[name]; dup {
		panic("blockfirst: Register called twice for store " + name)
	}
	registry[name] = opener
}

// Lookup returns the opener registered under name.
func Lookup(name string) (Opener, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	opener, ok := registry[name]
	if !ok {
		return nil, Errorf(ErrUnknownStore, "%q (registered: %v)", name, storesLocked())
	}
	return opener, nil
}

// Open opens the store registered under name.
func Open(ctx context.Context, name string, opts Options) (Env, error) {
	opener, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	env, err := opener(ctx, opts)
	if err != nil {
		if IsSetup(err) {
			return nil, err
		}
		return nil, WrapError(ErrSetup, err)
	}
	return env, nil
}

// Stores returns the sorted names of all registered stores.
func Stores() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return storesLocked()
}

func storesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
