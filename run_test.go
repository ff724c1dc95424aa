package blockfirst_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/blockfirst"
	"github.com/Giulio2002/blockfirst/internal/memstore"
)

func newTable(t *testing.T, cfg memstore.Config) (*memstore.Env, blockfirst.Table) {
	t.Helper()
	env := memstore.Open(cfg)
	t.Cleanup(func() { env.Close() })
	tbl, err := env.OpenTable(context.Background(), blockfirst.DefaultTable)
	require.NoError(t, err)
	return env, tbl
}

func config(threads int, rows uint64, sleep time.Duration) blockfirst.Config {
	cfg := blockfirst.DefaultConfig()
	cfg.Threads = threads
	cfg.Rows = rows
	cfg.Sleep = sleep
	return cfg
}

func TestRunDefaultScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("takes two seconds")
	}
	env, tbl := newTable(t, memstore.Config{LockTimeout: blockfirst.DefaultLockTimeout})

	report, err := blockfirst.Run(context.Background(), env, tbl, blockfirst.DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(20), report.Seeks())
	assert.GreaterOrEqual(t, report.Elapsed, 2*time.Second, "holds must be serialized")
	assert.True(t, report.Serialized())
	assert.Equal(t, 1, report.MaxHolders)
	assert.Equal(t, blockfirst.DefaultTable, report.Table)
	require.Len(t, report.Workers, 2)
	for i, w := range report.Workers {
		assert.Equal(t, i, w.ID)
		assert.Equal(t, uint64(10), w.Iterations)
		assert.Equal(t, uint64(10), w.NotFound)
	}
	assert.Positive(t, env.LockWaits(), "workers must have waited for each other")
	assert.Zero(t, env.LocksHeld())
}

func TestRunSerializesManyThreads(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(4, 5, 10*time.Millisecond), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), report.Seeks())
	assert.GreaterOrEqual(t, report.Elapsed, 200*time.Millisecond)
	assert.Equal(t, 1, report.MaxHolders)

	var maxWait time.Duration
	for _, w := range report.Workers {
		maxWait = max(maxWait, w.MaxLockWait)
		assert.GreaterOrEqual(t, w.LockWait, w.MaxLockWait)
	}
	assert.GreaterOrEqual(t, maxWait, 10*time.Millisecond, "someone waited a full hold")
}

func TestRunZeroRows(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(3, 0, time.Hour), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Seeks())
	for _, w := range report.Workers {
		assert.Zero(t, w.Iterations)
	}
	assert.Zero(t, report.MaxHolders)
}

func TestRunSingleThread(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(1, 3, 10*time.Millisecond), nil)
	require.NoError(t, err)
	require.Len(t, report.Workers, 1)
	assert.Equal(t, uint64(3), report.Workers[0].NotFound)
	assert.GreaterOrEqual(t, report.Elapsed, 30*time.Millisecond)
	assert.Zero(t, env.LockWaits())
}

func TestRunZeroSleep(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(4, 50, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), report.Seeks())
}

func TestRunIdempotent(t *testing.T) {
	env := memstore.Open(memstore.Config{})
	defer env.Close()
	for range 3 {
		tbl, err := env.OpenTable(context.Background(), blockfirst.DefaultTable)
		require.NoError(t, err)
		report, err := blockfirst.Run(context.Background(), env, tbl, config(2, 3, 5*time.Millisecond), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), report.Seeks())
	}
}

func TestRunThreadIDs(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		t.Skip("thread ids not available")
	}
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(3, 2, 5*time.Millisecond), nil)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, w := range report.Workers {
		assert.NotZero(t, w.ThreadID)
		seen[w.ThreadID] = true
	}
	assert.Len(t, seen, 3, "every worker runs on its own OS thread")
}

func TestRunInvalidConfig(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(0, 1, 0), nil)
	assert.Nil(t, report)
	assert.True(t, blockfirst.IsInvalidConfig(err))
}

func TestRunLogsSerializedBound(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	var buf bytes.Buffer
	log := blockfirst.NewTextLogger(&buf, slog.LevelDebug)

	cfg := config(2, 3, 10*time.Millisecond)
	assert.Equal(t, 60*time.Millisecond, cfg.MinSerialized())
	report, err := blockfirst.Run(context.Background(), env, tbl, cfg, log)
	require.NoError(t, err)
	assert.Equal(t, cfg.MinSerialized(), report.MinSerialized())
	assert.Contains(t, buf.String(), "msg=\"run starting\"")
	assert.Contains(t, buf.String(), "min_serialized=60ms")
}

func TestRunProgressLines(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	var buf bytes.Buffer
	log := blockfirst.NewTextLogger(&buf, slog.LevelInfo)

	cfg := config(2, 3, time.Millisecond)
	cfg.Verbose = 1
	_, err := blockfirst.Run(context.Background(), env, tbl, cfg, log)
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 6, strings.Count(out, "msg=progress"))
	assert.Contains(t, out, "worker=1")
	assert.Contains(t, out, "iteration=2")
	assert.NotContains(t, out, "lock_wait=")
	assert.Contains(t, out, "msg=\"run passed\"")

	buf.Reset()
	cfg.Verbose = 2
	_, err = blockfirst.Run(context.Background(), env, tbl, cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(buf.String(), "lock_wait="))

	buf.Reset()
	cfg.Verbose = 0
	_, err = blockfirst.Run(context.Background(), env, tbl, cfg, log)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "msg=progress")
}

func TestRunPhantomRow(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{Faults: memstore.Faults{PhantomRow: true, FailAfter: 2}})
	report, err := blockfirst.Run(context.Background(), env, tbl, config(2, 5, time.Millisecond), nil)
	require.Error(t, err)
	assert.True(t, blockfirst.IsCorrectness(err), "got %v", err)
	assert.Contains(t, err.Error(), "7068616e746f6d")
	require.NotNil(t, report)
	assert.Less(t, report.Seeks(), uint64(10))
	assert.Zero(t, env.LocksHeld(), "failed iterations release their locks")
}

func TestRunSeekError(t *testing.T) {
	boom := errors.New("io error")
	env, tbl := newTable(t, memstore.Config{Faults: memstore.Faults{SeekErr: boom}})
	_, err := blockfirst.Run(context.Background(), env, tbl, config(2, 3, time.Millisecond), nil)
	assert.True(t, blockfirst.IsCorrectness(err), "got %v", err)
	assert.ErrorIs(t, err, boom)
}

func TestRunDetectsMissingLock(t *testing.T) {
	faults := memstore.Faults{SkipLock: true}

	t.Run("exclusion", func(t *testing.T) {
		env, tbl := newTable(t, memstore.Config{Faults: faults})
		report, err := blockfirst.Run(context.Background(), env, tbl, config(2, 5, 20*time.Millisecond), nil)
		assert.True(t, blockfirst.IsExclusion(err), "got %v", err)
		assert.GreaterOrEqual(t, report.MaxHolders, 2)
	})

	t.Run("serialization", func(t *testing.T) {
		env, tbl := newTable(t, memstore.Config{Faults: faults})
		cfg := config(2, 5, 20*time.Millisecond)
		cfg.CheckExclusion = false
		report, err := blockfirst.Run(context.Background(), env, tbl, cfg, nil)
		assert.True(t, blockfirst.IsSerialization(err), "got %v", err)
		assert.False(t, report.Serialized())
		assert.Equal(t, uint64(10), report.Seeks())
	})

	t.Run("checks disabled", func(t *testing.T) {
		env, tbl := newTable(t, memstore.Config{Faults: faults})
		cfg := config(2, 5, 20*time.Millisecond)
		cfg.CheckExclusion = false
		cfg.CheckSerialization = false
		_, err := blockfirst.Run(context.Background(), env, tbl, cfg, nil)
		assert.NoError(t, err)
	})
}

func TestRunProtocolFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		faults memstore.Faults
	}{
		{"begin", memstore.Faults{BeginErr: boom, FailAfter: 3}},
		{"close", memstore.Faults{CloseErr: boom, FailAfter: 1}},
		{"commit", memstore.Faults{CommitErr: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, tbl := newTable(t, memstore.Config{Faults: tt.faults})
			report, err := blockfirst.Run(context.Background(), env, tbl, config(3, 4, 2*time.Millisecond), nil)
			assert.True(t, blockfirst.IsProtocol(err), "got %v", err)
			assert.False(t, blockfirst.IsStopped(err), "the failing worker's error wins")
			assert.ErrorIs(t, err, boom)
			require.NotNil(t, report)
			assert.Zero(t, env.LocksHeld())
		})
	}
}

func TestRunLockTimeout(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{LockTimeout: 10 * time.Millisecond})
	_, err := blockfirst.Run(context.Background(), env, tbl, config(2, 3, 100*time.Millisecond), nil)
	assert.True(t, blockfirst.IsCorrectness(err), "got %v", err)
	assert.True(t, blockfirst.IsLockTimeout(err))
}

func TestRunCancelled(t *testing.T) {
	env, tbl := newTable(t, memstore.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := blockfirst.Run(ctx, env, tbl, config(2, 100, time.Second), nil)
	assert.True(t, blockfirst.IsStopped(err), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, report.Seeks(), uint64(200))
	assert.Zero(t, env.LocksHeld())
}
