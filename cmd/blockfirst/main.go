// blockfirst checks that a transactional store serializes cursors that
// seek to the first key of an empty table with a write lock.
//
// Every worker loops: begin a transaction, open a cursor, seek to the first
// key under an exclusive lock (which must report not found), hold the lock
// for --sleeptime microseconds, close the cursor and commit. With a correct
// store the holds never overlap and the run takes at least
// nthreads * nrows * sleeptime.
//
//	blockfirst --store=mdbx --nthreads=4 --nrows=20 --sleeptime=50000 -v
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Giulio2002/blockfirst"
	"github.com/Giulio2002/blockfirst/internal/rundir"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// counter is a repeatable boolean flag: -v -v counts 2. A decrementing
// counter stops at zero; presses at zero are tallied in floored.
type counter struct {
	n       *int
	step    int
	floored *int
}

func (c counter) String() string {
	if c.n == nil {
		return "0"
	}
	return strconv.Itoa(*c.n)
}

func (c counter) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil || !on {
		return err
	}
	if c.step < 0 && *c.n == 0 {
		if c.floored != nil {
			*c.floored++
		}
		return nil
	}
	*c.n += c.step
	return nil
}

func (c counter) IsBoolFlag() bool { return true }

type options struct {
	verbose     int
	quiet       int // -q given at verbosity zero
	rows        uint64
	threads     int
	sleep       int64 // microseconds
	store       string
	dir         string
	dsn         string
	table       string
	lockTimeout time.Duration
	logFormat   string
	keep        bool
	noExclusion bool
	noSerial    bool
	listStores  bool
	version     bool
}

func parse(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("blockfirst", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Var(counter{n: &o.verbose, step: 1}, "v", "More progress output (repeatable)")
	fs.Var(counter{n: &o.verbose, step: 1}, "verbose", "Same as -v")
	fs.Var(counter{n: &o.verbose, step: -1, floored: &o.quiet}, "q", "Less output (repeatable)")
	fs.Var(counter{n: &o.verbose, step: -1, floored: &o.quiet}, "quiet", "Same as -q")
	fs.Uint64Var(&o.rows, "nrows", blockfirst.DefaultRows, "Iterations per worker")
	fs.IntVar(&o.threads, "nthreads", blockfirst.DefaultThreads, "Concurrent workers")
	fs.Int64Var(&o.sleep, "sleeptime", blockfirst.DefaultSleep.Microseconds(), "Lock hold per iteration, in microseconds")
	fs.StringVar(&o.store, "store", "mem", "Store under test (see --list-stores)")
	fs.StringVar(&o.dir, "dir", "", "Test directory (default dir.blockfirst.<store>)")
	fs.StringVar(&o.dsn, "dsn", "", "Connection string for server stores")
	fs.StringVar(&o.table, "table", blockfirst.DefaultTable, "Table name")
	fs.DurationVar(&o.lockTimeout, "lock-timeout", blockfirst.DefaultLockTimeout, "Lock wait timeout")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&o.keep, "keep", false, "Keep the test directory after the run")
	fs.BoolVar(&o.noExclusion, "no-exclusion-check", false, "Do not fail on overlapping lock holds")
	fs.BoolVar(&o.noSerial, "no-serialization-check", false, "Do not fail on runs faster than serialized holds")
	fs.BoolVar(&o.listStores, "list-stores", false, "Print the registered stores and exit")
	fs.BoolVar(&o.version, "version", false, "Print the version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if o.dir == "" {
		o.dir = "dir.blockfirst." + o.store
	}
	return o, nil
}

func (o *options) config() blockfirst.Config {
	cfg := blockfirst.DefaultConfig()
	cfg.Threads = o.threads
	cfg.Rows = o.rows
	cfg.Sleep = time.Duration(o.sleep) * time.Microsecond
	cfg.Verbose = o.verbose
	cfg.CheckExclusion = !o.noExclusion
	cfg.CheckSerialization = !o.noSerial
	return cfg
}

func (o *options) logger(w io.Writer) (*blockfirst.Logger, error) {
	def := slog.LevelInfo
	switch {
	case o.verbose > 1:
		def = slog.LevelDebug
	case o.verbose == 0 && o.quiet > 0:
		def = slog.LevelWarn
	}
	level := blockfirst.LevelFromEnv(def)
	switch o.logFormat {
	case "text":
		return blockfirst.NewTextLogger(w, level), nil
	case "json":
		return blockfirst.NewJSONLogger(w, level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", o.logFormat)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parse(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.version {
		fmt.Fprintln(stdout, blockfirst.Version())
		return 0
	}
	if o.listStores {
		for _, name := range blockfirst.Stores() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	log, err := o.logger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	log = log.WithStore(o.store)
	log = &blockfirst.Logger{Logger: log.With("run_id", uuid.NewString())}

	cfg := o.config()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return 2
	}
	if _, err := blockfirst.Lookup(o.store); err != nil {
		log.Error("cannot open store", "error", err)
		return 2
	}

	if err := test(ctx, o, cfg, log); err != nil {
		log.Error("test failed", "error", err, "code", int(blockfirst.Code(err)))
		return 1
	}
	return 0
}

// test sets up a fresh directory and table, runs the workers and tears
// everything down again.
func test(ctx context.Context, o *options, cfg blockfirst.Config, log *blockfirst.Logger) (err error) {
	dir, err := rundir.Prepare(o.dir)
	if err != nil {
		return blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	defer func() {
		var derr error
		if o.keep {
			derr = dir.Close()
		} else {
			derr = dir.Cleanup()
		}
		if derr != nil {
			log.Warn("release test directory", "path", dir.Path(), "error", derr)
		}
	}()

	env, err := blockfirst.Open(ctx, o.store, blockfirst.Options{
		Dir:         dir.Path(),
		DSN:         o.dsn,
		LockTimeout: o.lockTimeout,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil && err == nil {
			err = blockfirst.WrapError(blockfirst.ErrProtocol, cerr)
		}
	}()

	table, err := env.OpenTable(ctx, o.table)
	if err != nil {
		if blockfirst.IsSetup(err) {
			return err
		}
		return blockfirst.WrapError(blockfirst.ErrSetup, err)
	}
	log.Debug("table ready", "table", table.Name(), "dir", dir.Path())

	report, err := blockfirst.Run(ctx, env, table, cfg, log)
	if report != nil && cfg.Verbose > 0 {
		for _, w := range report.Workers {
			log.Info("worker done",
				"worker", w.ID,
				"tid", w.ThreadID,
				"iterations", w.Iterations,
				"not_found", w.NotFound,
				"max_lock_wait", w.MaxLockWait,
			)
		}
	}
	return err
}
