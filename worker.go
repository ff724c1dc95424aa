package blockfirst

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Params are the loop parameters shared read-only by every worker of a run.
type Params struct {
	Env   Env
	Table Table
	Rows  uint64
	Sleep time.Duration
}

// WorkerStats summarizes one worker loop.
type WorkerStats struct {
	ID       int
	ThreadID int

	// Iterations counts completed begin..commit cycles.
	Iterations uint64

	// NotFound counts seeks that reported not found.
	NotFound uint64

	// LockWait is the total time from begin to the seek returning, which
	// includes any time spent blocked behind another holder.
	LockWait time.Duration

	// MaxLockWait is the longest single begin-to-seek latency.
	MaxLockWait time.Duration
}

type worker struct {
	id     int
	params *Params
	cfg    *Config
	log    *Logger
	mon    *holdMonitor

	res   Result
	stats WorkerStats
}

func newWorker(id int, params *Params, cfg *Config, log *Logger, mon *holdMonitor) *worker {
	return &worker{id: id, params: params, cfg: cfg, log: log, mon: mon}
}

// run executes the whole loop on one OS thread.
func (w *worker) run(ctx context.Context) (WorkerStats, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.stats.ID = w.id
	w.stats.ThreadID = threadID()
	log := w.log.WithWorker(w.id, w.stats.ThreadID)

	for i := uint64(0); i < w.params.Rows; i++ {
		if ctx.Err() != nil {
			return w.stats, w.stopped(ctx, i)
		}
		if err := w.iterate(ctx, i, log); err != nil {
			return w.stats, err
		}
		w.stats.Iterations++
	}
	return w.stats, nil
}

// iterate performs begin, open cursor, seek-first under lock, hold, close
// cursor, commit. Every failure releases what the iteration holds before
// returning so that peers blocked on the lock can make progress.
func (w *worker) iterate(ctx context.Context, i uint64, log *Logger) error {
	start := time.Now()

	txn, err := w.params.Env.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return w.stopped(ctx, i)
		}
		return w.failure(ErrProtocol, i, "begin transaction", err)
	}

	cur, err := txn.OpenCursor(w.params.Table)
	if err != nil {
		w.release(log, txn, nil)
		return w.failure(ErrProtocol, i, "open cursor", err)
	}

	err = cur.FirstForUpdate(&w.res)
	switch Classify(err) {
	case OutcomeNotFound:
		w.stats.NotFound++
	case OutcomeFound:
		w.release(log, txn, cur)
		return Errorf(ErrCorrectness, "worker %d iteration %d: found key %x (%d value bytes) in empty table %q",
			w.id, i, w.res.Key.Bytes(), w.res.Val.Len(), w.params.Table.Name())
	default:
		w.release(log, txn, cur)
		if ctx.Err() != nil {
			return w.stopped(ctx, i)
		}
		return w.failure(ErrCorrectness, i, "seek first for update", err)
	}

	wait := time.Since(start)
	w.stats.LockWait += wait
	if wait > w.stats.MaxLockWait {
		w.stats.MaxLockWait = wait
	}

	holders := w.mon.enter()
	if err := w.mon.check(w.id, i, holders); err != nil {
		w.mon.leave()
		w.release(log, txn, cur)
		return err
	}
	slept := hold(ctx, w.params.Sleep)
	w.mon.leave()
	if !slept {
		w.release(log, txn, cur)
		return w.stopped(ctx, i)
	}

	if err := cur.Close(); err != nil {
		w.release(log, txn, nil)
		return w.failure(ErrProtocol, i, "close cursor", err)
	}
	if err := txn.Commit(); err != nil {
		w.release(log, txn, nil)
		return w.failure(ErrProtocol, i, "commit transaction", err)
	}

	switch {
	case w.cfg.Verbose > 1:
		log.Info("progress", "iteration", i, "lock_wait", wait)
	case w.cfg.Verbose > 0:
		log.Info("progress", "iteration", i)
	}
	return nil
}

// release closes cur (when non-nil) and aborts txn, logging but otherwise
// ignoring failures: the caller is already reporting a more important one.
func (w *worker) release(log *Logger, txn Txn, cur Cursor) {
	if cur != nil {
		if err := cur.Close(); err != nil {
			log.Debug("close cursor during release", "error", err)
		}
	}
	if err := txn.Abort(); err != nil {
		log.Debug("abort during release", "error", err)
	}
}

func (w *worker) failure(code ErrorCode, i uint64, op string, err error) error {
	e := WrapError(code, err)
	e.Message = fmt.Sprintf("%s: worker %d iteration %d: %s", e.Message, w.id, i, op)
	return e
}

func (w *worker) stopped(ctx context.Context, i uint64) error {
	e := WrapError(ErrStopped, context.Cause(ctx))
	e.Message = fmt.Sprintf("%s: worker %d after %d iterations", e.Message, w.id, i)
	return e
}

// hold suspends the caller for d with the lock held. It returns false if
// ctx is cancelled first.
func hold(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
