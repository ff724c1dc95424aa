// Package rundir prepares the directory a harness run keeps its store in.
// The directory is wiped and recreated before every run so each run starts
// from an empty store. A lock file next to the directory keeps two runs
// from wiping each other's store. A marker file inside the directory
// records that a run created it; Prepare refuses to wipe a non-empty
// directory that lacks one.
package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MarkerName is the file Prepare leaves in every directory it creates.
const MarkerName = ".blockfirst-run"

var (
	// ErrBusy is returned by Prepare when another run holds the directory.
	ErrBusy = errors.New("rundir: directory in use by another run")

	// ErrForeign is returned by Prepare when path exists but was not
	// created by an earlier run.
	ErrForeign = errors.New("rundir: refusing to wipe a directory not created by blockfirst")
)

// Dir is a prepared, locked run directory.
type Dir struct {
	path string
	lock *lockFile
}

// Prepare locks path, removes it with everything inside and recreates it
// holding only the marker file. An existing path must be an empty
// directory or one carrying the marker.
func Prepare(path string) (*Dir, error) {
	path = filepath.Clean(path)
	if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, err
		}
	}

	lf, err := openLockFile(path + ".lock")
	if err != nil {
		return nil, err
	}
	ok, err := lf.tryLock()
	if err != nil || !ok {
		lf.file.Close()
		if err == nil {
			err = ErrBusy
		}
		return nil, err
	}

	d := &Dir{path: path, lock: lf}
	if err := checkOwned(path); err != nil {
		d.Close()
		return nil, err
	}
	if err := os.RemoveAll(path); err != nil {
		d.Close()
		return nil, err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		d.Close()
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(path, MarkerName), nil, 0644); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func checkOwned(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrForeign, path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Lstat(filepath.Join(path, MarkerName)); err != nil {
		return fmt.Errorf("%w: %s", ErrForeign, path)
	}
	return nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Close releases the lock and leaves the directory in place.
func (d *Dir) Close() error {
	err := d.lock.unlock()
	if cerr := d.lock.file.Close(); err == nil {
		err = cerr
	}
	if rerr := os.Remove(d.lock.file.Name()); err == nil && !errors.Is(rerr, os.ErrNotExist) {
		err = rerr
	}
	return err
}

// Cleanup removes the directory and releases the lock.
func (d *Dir) Cleanup() error {
	err := os.RemoveAll(d.path)
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

type lockError struct {
	op  string
	err error
}

func (e *lockError) Error() string {
	return "rundir: " + e.op + ": " + e.err.Error()
}

func (e *lockError) Unwrap() error {
	return e.err
}
