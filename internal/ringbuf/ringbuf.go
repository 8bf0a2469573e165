// Package ringbuf implements a bounded multi-producer/single-consumer
// byte stream standing in for the kernel ring buffers (spec §3, §5):
// writers reserve-and-commit without blocking on the reader, records
// are self-delimited, and capacity is fixed at load time.
package ringbuf

import (
	"errors"
	"sync"
)

// DefaultCapacity is the 16 MiB per-buffer capacity spec §3 specifies
// for both the execve and monitoring ring buffers.
const DefaultCapacity = 16 * 1024 * 1024

// ErrClosed is returned by Publish and Read once Close has been called.
var ErrClosed = errors.New("ringbuf: closed")

// ErrRecordTooLarge is returned when a single record cannot fit even in
// an empty buffer.
var ErrRecordTooLarge = errors.New("ringbuf: record exceeds buffer capacity")

// RingBuffer is a bounded FIFO queue of whole records. Records that
// would overflow the capacity are dropped rather than blocking the
// producer, matching "never blocks" (spec §5); callers that need to
// know about drops should check Publish's return value.
type RingBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	used     int
	records  [][]byte
	closed   bool
}

// New returns a ring buffer with the given byte capacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rb := &RingBuffer{capacity: capacity}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Publish enqueues a fully assembled wire-format record. It returns
// (true, nil) on success, (false, nil) if the buffer is full and the
// record was dropped, and a non-nil error only for ErrClosed or
// ErrRecordTooLarge.
func (rb *RingBuffer) Publish(record []byte) (bool, error) {
	if len(record) > rb.capacity {
		return false, ErrRecordTooLarge
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return false, ErrClosed
	}
	if rb.used+len(record) > rb.capacity {
		return false, nil
	}
	rb.records = append(rb.records, record)
	rb.used += len(record)
	rb.cond.Signal()
	return true, nil
}

// Read blocks until at least one record is available, the buffer is
// closed, or ctx-equivalent cancellation is signalled via Close. It
// returns the oldest unread record in reservation order.
func (rb *RingBuffer) Read() ([]byte, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for len(rb.records) == 0 && !rb.closed {
		rb.cond.Wait()
	}
	if len(rb.records) == 0 {
		return nil, ErrClosed
	}
	record := rb.records[0]
	rb.records = rb.records[1:]
	rb.used -= len(record)
	return record, nil
}

// TryRead returns the oldest unread record without blocking, or
// (nil, false) if none is available.
func (rb *RingBuffer) TryRead() ([]byte, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.records) == 0 {
		return nil, false
	}
	record := rb.records[0]
	rb.records = rb.records[1:]
	rb.used -= len(record)
	return record, true
}

// Len reports the number of unread records.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.records)
}

// Close unblocks any pending Read and causes future Publish/Read calls
// to fail with ErrClosed.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return
	}
	rb.closed = true
	rb.cond.Broadcast()
}
