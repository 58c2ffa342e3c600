// Package queue provides the bounded lock-free channel used for every cross-thread link
// in the pipeline.
package queue

import (
	"sync/atomic"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

// SPSC is a single-producer single-consumer ring buffer of fixed power-of-two capacity.
//
// head and tail are free-running counters; they are masked only when indexing a slot.
// The ring is full when head-tail equals the capacity and empty when they are equal,
// so all N slots are usable.
//
// Exactly one goroutine may call TryPush and exactly one may call TryPop, NumAvailable
// and Clear. Any other use is undefined. TryPush and TryPop never block and never allocate.
type SPSC[T any] struct {
	buf  []T
	mask uint64

	// head is written by the producer only, tail by the consumer only.
	// Padding keeps the two counters off the same cache line.
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte
}

// New creates a ring with the given capacity.
// Returns domain.ErrInvalidCapacity unless capacity is a positive power of two.
func New[T any](capacity int) (*SPSC[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, domain.ErrInvalidCapacity
	}
	return &SPSC[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
// Intended for package-level capacity constants.
func MustNew[T any](capacity int) *SPSC[T] {
	q, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return q
}

// TryPush appends item. It returns false, leaving the ring unchanged, when the ring is full.
func (q *SPSC[T]) TryPush(item T) bool {
	h := q.head.Load()
	t := q.tail.Load()
	if h-t > q.mask {
		return false
	}
	q.buf[h&q.mask] = item
	// publishing head makes the slot write visible to the consumer
	q.head.Store(h + 1)
	return true
}

// TryPop removes the oldest item into out. It returns false when the ring is empty.
func (q *SPSC[T]) TryPop(out *T) bool {
	t := q.tail.Load()
	h := q.head.Load()
	if t == h {
		return false
	}
	*out = q.buf[t&q.mask]
	q.tail.Store(t + 1)
	return true
}

// NumAvailable returns the number of items that can currently be popped.
func (q *SPSC[T]) NumAvailable() int {
	t := q.tail.Load()
	h := q.head.Load()
	return int(h - t)
}

// Capacity returns the number of slots.
func (q *SPSC[T]) Capacity() int {
	return len(q.buf)
}

// Clear discards everything currently queued. Consumer side only; an item pushed
// concurrently with Clear may or may not survive.
func (q *SPSC[T]) Clear() {
	q.tail.Store(q.head.Load())
}
