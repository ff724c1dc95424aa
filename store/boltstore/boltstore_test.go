package boltstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/blockfirst"
	"github.com/Giulio2002/blockfirst/internal/storetest"
)

func open(t *testing.T) *Env {
	t.Helper()
	env, err := Open(context.Background(), blockfirst.Options{Dir: t.TempDir(), LockTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) blockfirst.Env { return open(t) })
}

func TestFirstForUpdateFound(t *testing.T) {
	env := open(t)
	tbl, err := env.OpenTable(context.Background(), "test.db")
	require.NoError(t, err)
	require.NoError(t, env.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("test.db")).Put([]byte("k"), []byte("v"))
	}))

	txn, err := env.Begin(context.Background())
	require.NoError(t, err)
	defer txn.Abort()
	cur, err := txn.OpenCursor(tbl)
	require.NoError(t, err)

	var res blockfirst.Result
	require.NoError(t, cur.FirstForUpdate(&res))
	assert.Equal(t, []byte("k"), res.Key.Bytes())
	assert.Equal(t, []byte("v"), res.Val.Bytes())

	require.NoError(t, cur.Close())
	require.ErrorIs(t, cur.FirstForUpdate(&res), errCursorClosed)

	// Reopening the table empties it.
	require.NoError(t, txn.Abort())
	_, err = env.OpenTable(context.Background(), "test.db")
	require.NoError(t, err)
	require.NoError(t, env.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket([]byte("test.db")).Cursor().First()
		assert.Nil(t, k)
		return nil
	}))
}

func TestAbortTwice(t *testing.T) {
	env := open(t)
	txn, err := env.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Abort())
	require.NoError(t, txn.Abort())
}
