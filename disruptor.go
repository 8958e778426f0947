package match

import (
	"runtime"
	"sync/atomic"

	"github.com/altex-exchange/matching-engine/protocol"
)

// Inbound is the engine's view of the inbound message queue: a thread-safe
// FIFO with a non-blocking poll. Producers enqueue from arbitrary
// goroutines; the engine thread is the sole consumer.
type Inbound interface {
	Poll() (*protocol.Command, bool)
}

// RingBuffer is an MPSC ring buffer. Multiple producers claim slots with a
// CAS on the producer sequence; the single consumer drains them in sequence
// order via Poll, which gives a total order over all published events.
type RingBuffer[T any] struct {
	// Cache line padding to avoid false sharing
	_                [56]byte
	producerSequence atomic.Int64
	_                [56]byte
	consumerSequence atomic.Int64
	_                [56]byte

	buffer     []T
	published  []int64
	bufferMask int64
	capacity   int64
}

// NewRingBuffer creates a ring buffer. capacity must be a power of two.
func NewRingBuffer[T any](capacity int64) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("capacity must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		bufferMask: capacity - 1,
		capacity:   capacity,
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)
	for i := range rb.published {
		rb.published[i] = -1
	}

	return rb
}

// Publish enqueues an event. It spins with a yield while the buffer is
// full; producers are otherwise never blocked.
func (rb *RingBuffer[T]) Publish(event T) {
	var seq int64
	for {
		current := rb.producerSequence.Load()
		seq = current + 1

		// The claimed slot is free once the consumer has passed the
		// sequence that previously occupied it.
		if seq-rb.capacity > rb.consumerSequence.Load() {
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(current, seq) {
			break
		}
	}

	idx := seq & rb.bufferMask
	rb.buffer[idx] = event
	atomic.StoreInt64(&rb.published[idx], seq)
}

// Poll returns the next event if one is ready. Single consumer only.
func (rb *RingBuffer[T]) Poll() (T, bool) {
	next := rb.consumerSequence.Load() + 1
	idx := next & rb.bufferMask

	if atomic.LoadInt64(&rb.published[idx]) != next {
		var zero T
		return zero, false
	}

	event := rb.buffer[idx]
	var zero T
	rb.buffer[idx] = zero
	rb.consumerSequence.Store(next)
	return event, true
}

// Len returns the approximate number of undrained events.
func (rb *RingBuffer[T]) Len() int64 {
	n := rb.producerSequence.Load() - rb.consumerSequence.Load()
	if n < 0 {
		return 0
	}
	return n
}
