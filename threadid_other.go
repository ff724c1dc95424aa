//go:build !linux && !windows

package blockfirst

// threadID is not available on this platform; progress lines fall back to
// the worker index alone.
func threadID() int {
	return 0
}
