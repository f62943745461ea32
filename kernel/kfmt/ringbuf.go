package kfmt

import "io"

// DefaultRingBufferSize is large enough to hold the log output of a complete
// mode-set sequence at debug level.
const DefaultRingBufferSize = 8192

// RingBuffer keeps the most recent bytes written to it, overwriting the oldest
// data once full. The CLI uses it to hold driver log output and only print it
// when a mode-set fails.
type RingBuffer struct {
	buffer         []byte
	mask           int
	rIndex, wIndex int
}

// NewRingBuffer creates a ring buffer whose capacity is size rounded up to the
// next power of 2. One slot is always kept free to tell a full buffer from an
// empty one.
func NewRingBuffer(size int) *RingBuffer {
	capacity := 1
	for capacity < size {
		capacity <<= 1
	}

	return &RingBuffer{
		buffer: make([]byte, capacity),
		mask:   capacity - 1,
	}
}

// Write appends p to the buffer, discarding the oldest bytes when it runs out
// of space. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & rb.mask
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & rb.mask
		}
	}

	return len(p), nil
}

// Len returns the number of unread bytes.
func (rb *RingBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & rb.mask
}

// Read reads up to len(p) bytes into p. It returns io.EOF once all buffered
// data has been consumed.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Read the contiguous chunk up to either the write index or the end of
	// the backing slice; callers loop for the rest.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = len(rb.buffer)
	}

	n := copy(p, rb.buffer[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & rb.mask

	return n, nil
}

// String returns the unread contents without consuming them.
func (rb *RingBuffer) String() string {
	if rb.rIndex <= rb.wIndex {
		return string(rb.buffer[rb.rIndex:rb.wIndex])
	}

	return string(rb.buffer[rb.rIndex:]) + string(rb.buffer[:rb.wIndex])
}
