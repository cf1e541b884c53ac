// Package queue provides the bounded hand-off queues between pipeline stages.
package queue

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultCapacity is the slot count used for both pipeline queues.
const DefaultCapacity = 64

var ErrInvalidCapacity = errors.New("capacity must be a positive power of two")

// Producer is the write side of a queue. Push never blocks; it reports false
// and leaves the queue unchanged when there is no free slot.
type Producer[T any] interface {
	Push(v T) bool
}

// Consumer is the read side of a queue. TryPop never blocks.
type Consumer[T any] interface {
	TryPop() (T, bool)
}

// cacheLine separates the producer and consumer indices.
type cacheLine [64]byte

// Ring is a lock-free single-producer single-consumer queue.
//
// Exactly one goroutine may call Push and exactly one may call TryPop. A slot
// is fully written before tail is published and fully read before head is
// published, so neither side can observe a partially copied element.
type Ring[T any] struct {
	slots []T
	mask  uint64

	_    cacheLine
	head atomic.Uint64 // next slot to read; written by the consumer
	_    cacheLine
	tail atomic.Uint64 // next slot to write; written by the producer
	_    cacheLine

	dropped atomic.Uint64
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Ring[T]{
		slots: make([]T, capacity),
		mask:  uint64(capacity - 1),
	}, nil
}

// Push copies v into the next free slot.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		r.dropped.Add(1)
		return false
	}
	r.slots[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// TryPop removes the oldest element.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	idx := head & r.mask
	v := r.slots[idx]
	r.slots[idx] = zero
	r.head.Store(head + 1)
	return v, true
}

// Len returns the number of queued elements. The value is a snapshot and may
// be stale by the time it is used.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Dropped returns how many Push calls failed because the ring was full.
func (r *Ring[T]) Dropped() uint64 {
	return r.dropped.Load()
}
