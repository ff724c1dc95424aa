package memstore

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/Giulio2002/blockfirst"
)

// bound is one end of a key range. A bound with inf set is -inf when used
// as a lower bound and +inf when used as an upper bound.
type bound struct {
	key []byte
	inf bool
}

// keyRange is a closed interval [lo, hi] of keys.
type keyRange struct {
	lo bound
	hi bound
}

// fullRange is (-inf, +inf).
var fullRange = keyRange{lo: bound{inf: true}, hi: bound{inf: true}}

// upTo returns (-inf, key].
func upTo(key []byte) keyRange {
	return keyRange{lo: bound{inf: true}, hi: bound{key: key}}
}

// overlaps reports whether r and o share at least one key.
func (r keyRange) overlaps(o keyRange) bool {
	return lowerBelowUpper(r.lo, o.hi) && lowerBelowUpper(o.lo, r.hi)
}

func lowerBelowUpper(lo, hi bound) bool {
	if lo.inf || hi.inf {
		return true
	}
	return bytes.Compare(lo.key, hi.key) <= 0
}

// rangeLock is an exclusive range lock held by one transaction.
type rangeLock struct {
	owner uint64
	table string
	r     keyRange
}

// lockTable grants exclusive range locks. Requests that conflict with a
// lock held by another transaction wait until that lock is released or the
// timeout expires.
type lockTable struct {
	mu      sync.Mutex
	held    []rangeLock
	changed chan struct{} // closed and replaced on every release
	timeout time.Duration

	waits uint64 // number of requests that had to wait
}

func newLockTable(timeout time.Duration) *lockTable {
	return &lockTable{
		changed: make(chan struct{}),
		timeout: timeout,
	}
}

// conflictsLocked reports whether r on table conflicts with a lock held by
// a transaction other than owner. lt.mu must be held.
func (lt *lockTable) conflictsLocked(owner uint64, table string, r keyRange) bool {
	for _, l := range lt.held {
		if l.owner != owner && l.table == table && l.r.overlaps(r) {
			return true
		}
	}
	return false
}

// acquire blocks until owner holds an exclusive lock on r, the lock wait
// timeout expires, or ctx is cancelled.
func (lt *lockTable) acquire(ctx context.Context, owner uint64, table string, r keyRange) error {
	var timer *time.Timer
	var expired <-chan time.Time
	if lt.timeout > 0 {
		timer = time.NewTimer(lt.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	waited := false
	for {
		lt.mu.Lock()
		if !lt.conflictsLocked(owner, table, r) {
			lt.held = append(lt.held, rangeLock{owner: owner, table: table, r: r})
			lt.mu.Unlock()
			return nil
		}
		if !waited {
			waited = true
			lt.waits++
		}
		ch := lt.changed
		lt.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			return blockfirst.Errorf(blockfirst.ErrLockTimeout, "table %q after %v", table, lt.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// releaseAll drops every lock owned by owner and wakes all waiters.
func (lt *lockTable) releaseAll(owner uint64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	kept := lt.held[:0]
	for _, l := range lt.held {
		if l.owner != owner {
			kept = append(kept, l)
		}
	}
	clear(lt.held[len(kept):])
	lt.held = kept

	close(lt.changed)
	lt.changed = make(chan struct{})
}

func (lt *lockTable) heldCount() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.held)
}

func (lt *lockTable) waitCount() uint64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.waits
}
