package blockfirst

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Report summarizes a finished run.
type Report struct {
	Table   string
	Threads int
	Rows    uint64
	Sleep   time.Duration

	Started time.Time
	Elapsed time.Duration

	// Workers holds one entry per worker, indexed by worker id. Worker 0
	// is the one the coordinator ran inline.
	Workers []WorkerStats

	// MaxHolders is the largest number of workers observed inside the
	// lock hold window at once.
	MaxHolders int
}

// Seeks returns the number of seeks that reported not found.
func (r *Report) Seeks() uint64 {
	var n uint64
	for _, w := range r.Workers {
		n += w.NotFound
	}
	return n
}

// MinSerialized is the wall time lower bound for the run under correct
// mutual exclusion.
func (r *Report) MinSerialized() time.Duration {
	return Config{Threads: r.Threads, Rows: r.Rows, Sleep: r.Sleep}.MinSerialized()
}

// Serialized reports whether the elapsed time is consistent with every
// lock hold having been exclusive.
func (r *Report) Serialized() bool {
	return r.Elapsed >= r.MinSerialized()
}

// Run drives cfg.Threads concurrent worker loops against table. It spawns
// cfg.Threads-1 workers in a task group, runs one loop on the calling
// goroutine, waits for every spawned worker and returns the first failure.
// A failure in any worker cancels the others at their next suspension
// point. The returned report is non-nil whenever the workers ran, even if
// the run failed.
func Run(ctx context.Context, env Env, table Table, cfg Config, log *Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NoopLogger()
	}

	params := &Params{
		Env:   env,
		Table: table,
		Rows:  cfg.Rows,
		Sleep: cfg.Sleep,
	}
	mon := newHoldMonitor(cfg.CheckExclusion)

	workers := make([]*worker, cfg.Threads)
	for i := range workers {
		workers[i] = newWorker(i, params, &cfg, log, mon)
	}

	report := &Report{
		Table:   table.Name(),
		Threads: cfg.Threads,
		Rows:    cfg.Rows,
		Sleep:   cfg.Sleep,
		Workers: make([]WorkerStats, cfg.Threads),
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Threads-1, 1))

	log.Debug("run starting",
		"table", report.Table,
		"threads", cfg.Threads,
		"rows", cfg.Rows,
		"sleep", cfg.Sleep,
		"min_serialized", cfg.MinSerialized(),
	)
	report.Started = time.Now()
	for _, w := range workers[1:] {
		g.Go(func() error {
			stats, err := w.run(gctx)
			report.Workers[w.id] = stats
			return err
		})
	}

	stats, inlineErr := workers[0].run(gctx)
	report.Workers[0] = stats
	if inlineErr != nil {
		cancel(inlineErr)
	}
	groupErr := g.Wait()
	report.Elapsed = time.Since(report.Started)
	report.MaxHolders = mon.maxHolders()

	if err := firstFailure(inlineErr, groupErr); err != nil {
		log.Error("run failed", "error", err, "elapsed", report.Elapsed)
		return report, err
	}

	if cfg.CheckSerialization && cfg.Threads > 1 && !report.Serialized() {
		err := Errorf(ErrSerialization, "%d threads x %d rows x %v finished in %v, want >= %v",
			cfg.Threads, cfg.Rows, cfg.Sleep, report.Elapsed, report.MinSerialized())
		log.Error("run failed", "error", err)
		return report, err
	}

	log.Info("run passed",
		"threads", cfg.Threads,
		"rows", cfg.Rows,
		"sleep", cfg.Sleep,
		"seeks", report.Seeks(),
		"elapsed", report.Elapsed,
		"max_holders", report.MaxHolders,
	)
	return report, nil
}

// firstFailure picks the error that caused the run to fail. A worker that
// merely stopped because a peer failed reports ErrStopped; the peer's own
// error is preferred over it.
func firstFailure(inline, group error) error {
	switch {
	case inline != nil && !IsStopped(inline):
		return inline
	case group != nil && !IsStopped(group):
		return group
	case inline != nil:
		return inline
	default:
		return group
	}
}
