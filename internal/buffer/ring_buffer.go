// Package buffer provides the scrollback ring used to replay terminal output.
package buffer

import (
	"sync"
)

// DefaultCapacity is the scrollback budget used when none is configured (256KB).
const DefaultCapacity = 256 * 1024

// RingBuffer is a thread-safe circular byte buffer that keeps the most recent
// bytes up to a fixed capacity. The backing array is allocated once; writes
// past capacity overwrite the oldest bytes, so memory never grows with the
// amount of output produced.
type RingBuffer struct {
	mu   sync.RWMutex
	data []byte
	// start is the index of the oldest byte.
	start int
	size  int
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data: make([]byte, capacity),
	}
}

// Write appends p to the buffer, evicting the oldest bytes once capacity is
// exceeded. It implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (n int, err error) {
	rb.Append(p)
	return len(p), nil
}

// Append appends p to the buffer.
func (rb *RingBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.data)

	// Only the tail of an oversized write can survive.
	if len(p) >= capacity {
		copy(rb.data, p[len(p)-capacity:])
		rb.start = 0
		rb.size = capacity
		return
	}

	end := (rb.start + rb.size) % capacity
	n := copy(rb.data[end:], p)
	if n < len(p) {
		copy(rb.data, p[n:])
	}

	rb.size += len(p)
	if rb.size > capacity {
		overflow := rb.size - capacity
		rb.start = (rb.start + overflow) % capacity
		rb.size = capacity
	}
}

// Snapshot returns a copy of the buffered bytes, oldest first, or nil when
// the buffer is empty. The copy is safe to use without holding the lock.
func (rb *RingBuffer) Snapshot() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}

	out := make([]byte, rb.size)
	n := copy(out, rb.data[rb.start:min(rb.start+rb.size, len(rb.data))])
	if n < rb.size {
		copy(out[n:], rb.data[:rb.size-n])
	}
	return out
}

// Clear removes all data from the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.start = 0
	rb.size = 0
}

// Len returns the current number of bytes in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}
