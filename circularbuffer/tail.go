/*
Package circularbuffer keeps the most recent bytes written to it.

A scan over a stream of chunks needs to remember the last few bytes of what it has seen so that a pattern
straddling two chunks can still be matched. Tail does that with a single fixed allocation: writes shuffle the
retained suffix to the front of the storage, so the contents are always available as one contiguous slice.
*/
package circularbuffer

// Tail retains the last Capacity() bytes of everything written to it
type Tail struct {
	buffer []byte
}

// NewTail creates a Tail that retains up to size bytes.
// A size of zero or less produces a Tail that never retains anything.
func NewTail(size int) *Tail {
	if size < 0 {
		size = 0
	}
	return &Tail{
		buffer: make([]byte, 0, size),
	}
}

// Capacity is the maximum number of bytes retained
func (t *Tail) Capacity() int {
	return cap(t.buffer)
}

// Len is the number of bytes currently retained
func (t *Tail) Len() int {
	return len(t.buffer)
}

// Write appends p, evicting the oldest bytes once the capacity is exceeded.
// It satisfies io.Writer and never fails.
func (t *Tail) Write(p []byte) (n int, err error) {
	c := cap(t.buffer)
	n = len(p)

	if c == 0 {
		return n, nil
	}

	if n >= c {
		t.buffer = t.buffer[:c]
		copy(t.buffer, p[n-c:])
		return n, nil
	}

	keep := c - n
	if keep > len(t.buffer) {
		keep = len(t.buffer)
	}

	copy(t.buffer[:keep], t.buffer[len(t.buffer)-keep:])
	t.buffer = append(t.buffer[:keep], p...)

	return n, nil
}

// Bytes returns the retained bytes, oldest to newest.
// The slice is only valid until the next Write or Reset.
func (t *Tail) Bytes() []byte {
	return t.buffer
}

// Reset discards the retained bytes, keeping the storage
func (t *Tail) Reset() {
	t.buffer = t.buffer[:0]
}
