package blockfirst

import "sync/atomic"

// holdMonitor counts workers inside the lock hold window. A worker enters
// after its seek returns and leaves before it commits, so both edges lie
// inside the lock hold and a correct store never lets the count exceed one.
// The monitor only observes; it never makes a worker wait.
type holdMonitor struct {
	enabled bool
	holders atomic.Int32
	peak    atomic.Int32
}

func newHoldMonitor(enabled bool) *holdMonitor {
	return &holdMonitor{enabled: enabled}
}

// enter records a worker taking the lock and returns the number of
// holders including it.
func (m *holdMonitor) enter() int32 {
	n := m.holders.Add(1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return n
}

func (m *holdMonitor) leave() {
	m.holders.Add(-1)
}

// check returns an exclusion error when n holders overlap and the check
// is enabled.
func (m *holdMonitor) check(worker int, iteration uint64, n int32) error {
	if !m.enabled || n <= 1 {
		return nil
	}
	return Errorf(ErrExclusion, "worker %d iteration %d saw %d concurrent holders", worker, iteration, n)
}

func (m *holdMonitor) maxHolders() int {
	return int(m.peak.Load())
}
