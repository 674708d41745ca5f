package sync

import (
	"math"
	"sync/atomic"

	xcpu "golang.org/x/sys/cpu"

	"kcore/kernel"
)

var errRingCapacity = &kernel.Error{Module: "sync", Message: "ring buffer capacity must be at least 2"}

// RingBuffer is a fixed-capacity queue that moves values from exactly one
// producer to exactly one consumer without locking. It is used to carry data
// such as decoded keyboard events or log bytes out of interrupt handlers.
//
// The buffer holds len(slots) slots but at most len(slots)-1 values: read ==
// write denotes an empty buffer. Write never blocks; when the buffer is full
// the oldest unread value is discarded to make room and the consumer has no
// way to detect the loss.
//
// Multiple concurrent producers or consumers are not supported and are not
// detected.
type RingBuffer[T any] struct {
	_ xcpu.CacheLinePad

	// read is advanced by the consumer and, when discarding, by the producer.
	read atomic.Uint32
	_    xcpu.CacheLinePad

	// write is only advanced by the producer.
	write atomic.Uint32
	_     xcpu.CacheLinePad

	slots []T
}

// NewRingBuffer returns a RingBuffer with the given number of slots. The
// buffer can hold up to capacity-1 values.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 2 || uint64(capacity) > math.MaxUint32 {
		panic(errRingCapacity)
	}

	return &RingBuffer[T]{slots: make([]T, capacity)}
}

// Capacity returns the maximum number of values the buffer can hold.
func (rb *RingBuffer[T]) Capacity() int {
	return len(rb.slots) - 1
}

// Len returns the number of unread values. The result is only a snapshot if
// the producer or consumer are active.
func (rb *RingBuffer[T]) Len() int {
	read, write := int(rb.read.Load()), int(rb.write.Load())
	if write >= read {
		return write - read
	}
	return len(rb.slots) - read + write
}

// Write appends value to the buffer, discarding the oldest unread value if the
// buffer is full. Write must only be called by the producer.
func (rb *RingBuffer[T]) Write(value T) {
	write := rb.write.Load()
	next := rb.next(write)

	if read := rb.read.Load(); next == read {
		// Publishing next would make the buffer look empty; drop the oldest
		// value first. A failed swap means the consumer already took it.
		rb.read.CompareAndSwap(read, rb.next(read))
	}

	rb.slots[write] = value
	rb.write.Store(next)
}

// Read removes and returns the oldest unread value. The second return value is
// false if the buffer is empty. Read must only be called by the consumer.
func (rb *RingBuffer[T]) Read() (T, bool) {
	for {
		read := rb.read.Load()
		if read == rb.write.Load() {
			var empty T
			return empty, false
		}

		value := rb.slots[read]

		// Losing the swap means the producer discarded this value while it
		// was being copied; retry with the new oldest one.
		if rb.read.CompareAndSwap(read, rb.next(read)) {
			return value, true
		}
	}
}

func (rb *RingBuffer[T]) next(index uint32) uint32 {
	if index++; index == uint32(len(rb.slots)) {
		return 0
	}
	return index
}
