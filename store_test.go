package blockfirst

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopEnv struct{}

func (nopEnv) OpenTable(ctx context.Context, name string) (Table, error) { return nil, nil }
func (nopEnv) Begin(ctx context.Context) (Txn, error)                    { return nil, nil }
func (nopEnv) Close() error                                              { return nil }

func TestRegistry(t *testing.T) {
	var got Options
	Register("test-registry-ok", func(ctx context.Context, opts Options) (Env, error) {
		got = opts
		return nopEnv{}, nil
	})
	Register("test-registry-fail", func(ctx context.Context, opts Options) (Env, error) {
		return nil, errors.New("no such file")
	})
	Register("test-registry-setup", func(ctx context.Context, opts Options) (Env, error) {
		return nil, Errorf(ErrSetup, "already classified")
	})

	env, err := Open(context.Background(), "test-registry-ok", Options{Dir: "d"})
	require.NoError(t, err)
	assert.Equal(t, nopEnv{}, env)
	assert.Equal(t, "d", got.Dir)
	assert.NotNil(t, got.Logger, "Open fills in a logger")

	_, err = Open(context.Background(), "test-registry-fail", Options{})
	assert.True(t, IsSetup(err))
	assert.Contains(t, err.Error(), "no such file")

	_, err = Open(context.Background(), "test-registry-setup", Options{})
	assert.Equal(t, "blockfirst: store setup failed: already classified", err.Error())

	_, err = Lookup("test-registry-missing")
	assert.True(t, IsUnknownStore(err))
	assert.Contains(t, err.Error(), "test-registry-ok")

	names := Stores()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "test-registry-fail")
}

func TestRegisterPanics(t *testing.T) {
	opener := func(ctx context.Context, opts Options) (Env, error) { return nopEnv{}, nil }
	Register("test-registry-dup", opener)
	assert.Panics(t, func() { Register("test-registry-dup", opener) })
	assert.Panics(t, func() { Register("test-registry-nil", nil) })
}
