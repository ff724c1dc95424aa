package blockfirst

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHoldMonitor(t *testing.T) {
	m := newHoldMonitor(true)
	assert.Equal(t, int32(1), m.enter())
	assert.NoError(t, m.check(0, 0, 1))

	n := m.enter()
	assert.Equal(t, int32(2), n)
	err := m.check(1, 7, n)
	assert.True(t, IsExclusion(err))
	assert.Contains(t, err.Error(), "worker 1 iteration 7 saw 2 concurrent holders")

	m.leave()
	m.leave()
	assert.Equal(t, 2, m.maxHolders(), "the peak survives leaving")

	off := newHoldMonitor(false)
	off.enter()
	assert.NoError(t, off.check(0, 0, off.enter()))
	assert.Equal(t, 2, off.maxHolders())
}

func TestHoldMonitorPeakConcurrent(t *testing.T) {
	m := newHoldMonitor(false)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			m.enter()
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 8, m.maxHolders())
}

func TestHold(t *testing.T) {
	start := time.Now()
	assert.True(t, hold(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.True(t, hold(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, hold(ctx, time.Hour))
	assert.False(t, hold(ctx, 0))
}
