package mdbxstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/blockfirst"
	"github.com/Giulio2002/blockfirst/internal/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) blockfirst.Env {
		env, err := Open(context.Background(), blockfirst.Options{Dir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { env.Close() })
		return env
	})
}

func TestOpenSetupFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := blockfirst.Open(context.Background(), Name, blockfirst.Options{Dir: filepath.Join(blocker, "sub")})
	require.Error(t, err)
	assert.True(t, blockfirst.IsSetup(err))
}
