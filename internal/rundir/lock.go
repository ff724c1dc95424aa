//go:build unix

package rundir

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile is an exclusive advisory lock on one file.
type lockFile struct {
	file   *os.File
	locked bool
}

func openLockFile(path string) (*lockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &lockError{"open lock file", err}
	}
	return &lockFile{file: f}, nil
}

// tryLock attempts to acquire the lock without blocking.
func (lf *lockFile) tryLock() (bool, error) {
	err := unix.Flock(int(lf.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, &lockError{"try lock", err}
	}
	lf.locked = true
	return true, nil
}

func (lf *lockFile) unlock() error {
	if !lf.locked {
		return nil
	}
	if err := unix.Flock(int(lf.file.Fd()), unix.LOCK_UN); err != nil {
		return &lockError{"release lock", err}
	}
	lf.locked = false
	return nil
}
