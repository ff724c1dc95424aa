//go:build windows

package rundir

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockFile is an exclusive lock on the first byte of one file.
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
	handle := windows.Handle(lf.file.Fd())
	var overlapped windows.Overlapped
	err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &overlapped)
	if err != nil {
		// ERROR_LOCK_VIOLATION means another process holds it
		if err == windows.ERROR_LOCK_VIOLATION {
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
	handle := windows.Handle(lf.file.Fd())
	var overlapped windows.Overlapped
	if err := windows.UnlockFileEx(handle, 0, 1, 0, &overlapped); err != nil {
		return &lockError{"release lock", err}
	}
	lf.locked = false
	return nil
}
