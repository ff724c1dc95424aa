package blockfirst

import "time"

// Defaults for a run.
const (
	DefaultRows        = 10
	DefaultThreads     = 2
	DefaultSleep       = 100 * time.Millisecond
	DefaultLockTimeout = 30 * time.Second
	DefaultTable       = "test.db"
)

// Config describes one harness run. A Config is read-only once Run starts.
type Config struct {
	// Threads is the number of concurrent workers, including the one the
	// coordinator runs inline.
	Threads int

	// Rows is the number of iterations every worker performs.
	Rows uint64

	// Sleep is how long each iteration holds the lock with the cursor open.
	Sleep time.Duration

	// Verbose enables progress lines at 1 and per-iteration lock wait
	// details at 2.
	Verbose int

	// CheckExclusion fails the run when two workers are inside the lock
	// hold window at the same time.
	CheckExclusion bool

	// CheckSerialization fails the run when it finishes faster than
	// Threads*Rows*Sleep.
	CheckSerialization bool
}

// DefaultConfig returns the configuration of the canonical scenario: two
// threads, ten rows each, 100ms lock holds.
func DefaultConfig() Config {
	return Config{
		Threads:            DefaultThreads,
		Rows:               DefaultRows,
		Sleep:              DefaultSleep,
		CheckExclusion:     true,
		CheckSerialization: true,
	}
}

// Validate checks that the configuration describes a runnable test.
func (c Config) Validate() error {
	if c.Threads < 1 {
		return Errorf(ErrInvalidConfig, "threads must be >= 1, got %d", c.Threads)
	}
	if c.Sleep < 0 {
		return Errorf(ErrInvalidConfig, "sleep must be >= 0, got %v", c.Sleep)
	}
	if c.Verbose < 0 {
		return Errorf(ErrInvalidConfig, "verbosity must be >= 0, got %d", c.Verbose)
	}
	return nil
}

// MinSerialized is the shortest wall time a run can take when every lock
// hold is exclusive and table-wide.
func (c Config) MinSerialized() time.Duration {
	return time.Duration(c.Threads) * time.Duration(c.Rows) * c.Sleep
}
