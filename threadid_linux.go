//go:build linux

package blockfirst

import "golang.org/x/sys/unix"

// threadID returns the kernel id of the calling OS thread. Callers pin
// their goroutine with runtime.LockOSThread for the id to stay meaningful.
func threadID() int {
	return unix.Gettid()
}
