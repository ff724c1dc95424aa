// Package storetest holds the conformance checks every locking store
// adapter must pass.
package storetest

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/blockfirst"
)

// Opener opens a fresh environment for one subtest.
type Opener func(t *testing.T) blockfirst.Env

// TableName returns a table name no earlier run has used.
func TableName() string {
	return "blockfirst_" + uuid.NewString()[:8]
}

// Run checks that the store reports not found on an empty table without
// touching the result buffers, holds the seek lock until commit, and passes
// a full harness run.
func Run(t *testing.T, open Opener) {
	t.Run("EmptySeek", func(t *testing.T) { testEmptySeek(t, open(t)) })
	t.Run("LockHeldUntilCommit", func(t *testing.T) { testLockHeldUntilCommit(t, open(t)) })
	t.Run("Harness", func(t *testing.T) { testHarness(t, open(t)) })
	t.Run("FreshTable", func(t *testing.T) { testFreshTable(t, open(t)) })
}

func seek(t *testing.T, env blockfirst.Env, tbl blockfirst.Table) (blockfirst.Txn, blockfirst.Cursor) {
	t.Helper()
	txn, err := env.Begin(context.Background())
	require.NoError(t, err)
	cur, err := txn.OpenCursor(tbl)
	require.NoError(t, err)
	var res blockfirst.Result
	res.Set([]byte("old"), []byte("val"))
	err = cur.FirstForUpdate(&res)
	require.True(t, blockfirst.IsNotFound(err), "seek on empty table: %v", err)
	assert.Equal(t, []byte("old"), res.Key.Bytes(), "not found seek changed the key buffer")
	assert.Equal(t, []byte("val"), res.Val.Bytes(), "not found seek changed the value buffer")
	return txn, cur
}

func testEmptySeek(t *testing.T, env blockfirst.Env) {
	tbl, err := env.OpenTable(context.Background(), TableName())
	require.NoError(t, err)

	for range 3 {
		txn, cur := seek(t, env, tbl)
		require.NoError(t, cur.Close())
		require.NoError(t, txn.Commit())
	}
}

func testLockHeldUntilCommit(t *testing.T, env blockfirst.Env) {
	const hold = 150 * time.Millisecond
	tbl, err := env.OpenTable(context.Background(), TableName())
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		// mdbx transactions are bound to their OS thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		txn, err := env.Begin(context.Background())
		if err != nil {
			close(locked)
			done <- err
			return
		}
		cur, err := txn.OpenCursor(tbl)
		if err == nil {
			if err = cur.FirstForUpdate(&blockfirst.Result{}); blockfirst.IsNotFound(err) {
				err = nil
			}
		}
		close(locked)
		if err != nil {
			txn.Abort()
			done <- err
			return
		}
		<-release
		if err := cur.Close(); err != nil {
			txn.Abort()
			done <- err
			return
		}
		done <- txn.Commit()
	}()

	<-locked
	select {
	case err := <-done:
		require.NoError(t, err)
	default:
	}
	start := time.Now()
	time.AfterFunc(hold, func() { close(release) })

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	txn, cur := seek(t, env, tbl)
	assert.GreaterOrEqual(t, time.Since(start), hold-10*time.Millisecond,
		"second seek returned while the first transaction held the lock")
	require.NoError(t, cur.Close())
	require.NoError(t, txn.Commit())
	require.NoError(t, <-done)
}

func testHarness(t *testing.T, env blockfirst.Env) {
	tbl, err := env.OpenTable(context.Background(), TableName())
	require.NoError(t, err)

	cfg := blockfirst.DefaultConfig()
	cfg.Threads = 3
	cfg.Rows = 4
	cfg.Sleep = 10 * time.Millisecond

	report, err := blockfirst.Run(context.Background(), env, tbl, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), report.Seeks())
	assert.Equal(t, 1, report.MaxHolders)
	assert.GreaterOrEqual(t, report.Elapsed, 120*time.Millisecond)
}

func testFreshTable(t *testing.T, env blockfirst.Env) {
	name := TableName()
	for range 2 {
		tbl, err := env.OpenTable(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, name, tbl.Name())
		txn, cur := seek(t, env, tbl)
		require.NoError(t, cur.Close())
		require.NoError(t, txn.Commit())
	}
}
