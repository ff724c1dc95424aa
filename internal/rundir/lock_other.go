//go:build !unix && !windows

package rundir

import "os"

// lockFile only holds the file open; this platform has no advisory locks.
type lockFile struct {
	file *os.File
}

func openLockFile(path string) (*lockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &lockError{"open lock file", err}
	}
	return &lockFile{file: f}, nil
}

func (lf *lockFile) tryLock() (bool, error) { return true, nil }

func (lf *lockFile) unlock() error { return nil }
