package blockfirst

// Buffer is a growable byte buffer that keeps its backing array across
// reuses. Its capacity never shrinks.
type Buffer struct {
	data []byte
}

// Set replaces the buffer content with a copy of p, growing the backing
// array only when p does not fit.
func (b *Buffer) Set(p []byte) {
	if cap(b.data) < len(p) {
		newCap := 2 * cap(b.data)
		if newCap < len(p) {
			newCap = len(p)
		}
		b.data = make([]byte, len(p), newCap)
	} else {
		b.data = b.data[:len(p)]
	}
	copy(b.data, p)
}

// Bytes returns the current content. The slice is only valid until the
// next Set.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the content length.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int { return cap(b.data) }

// Result receives the key/value pair found by Cursor.FirstForUpdate.
// Each worker owns one Result for its whole loop.
type Result struct {
	Key Buffer
	Val Buffer
}

// Set copies key and value into the result buffers.
func (r *Result) Set(key, val []byte) {
	r.Key.Set(key)
	r.Val.Set(val)
}
