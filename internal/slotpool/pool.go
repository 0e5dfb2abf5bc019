// Package slotpool implements a mutex-guarded pool of fixed-size slots, carved
// out of slabs that are allocated in blocks and never returned to the heap
// while the pool is open.
//
// Thread Safety: all methods are safe to call from any goroutine.
package slotpool

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultChunkSize is the number of slots allocated per slab.
	DefaultChunkSize = 16
)

// ErrExhausted is the panic value (wrapped) raised by Acquire when the pool
// may not grow any further.
var ErrExhausted = errors.New("slotpool: pool exhausted")

type (
	// Pool hands out pointers to zeroed values of T, backed by slabs.
	// Instances must be initialized using the New factory.
	Pool[T any] struct {
		_ [0]func() // no copy

		mu        sync.Mutex
		chunks    [][]T
		free      []*T
		chunkSize int
		maxChunks int
		acquired  uint64
		released  uint64
		closed    bool
	}

	// Stats is a point in time snapshot of a Pool.
	Stats struct {
		// Chunks is the number of slabs allocated.
		Chunks int
		// Capacity is the total number of slots across all slabs.
		Capacity int
		// InUse is the number of slots acquired but not yet released.
		InUse int
		// Acquired is the lifetime count of Acquire calls.
		Acquired uint64
		// Released is the lifetime count of Release calls.
		Released uint64
	}
)

// New initializes a new Pool. No slab is allocated until the first Acquire.
func New[T any](opts ...Option) *Pool[T] {
	cfg := resolveOptions(opts)
	return &Pool[T]{
		chunkSize: cfg.chunkSize,
		maxChunks: cfg.maxChunks,
	}
}

// Acquire returns a zeroed slot, which the caller owns until it is passed to
// Release. A new slab is allocated if no free slot is available.
//
// Growth past the configured maximum number of chunks panics with an error
// wrapping ErrExhausted.
func (x *Pool[T]) Acquire() *T {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		panic(fmt.Errorf(`%w: acquire on closed pool`, ErrExhausted))
	}

	if len(x.free) == 0 {
		x.grow()
	}

	n := len(x.free) - 1
	slot := x.free[n]
	x.free[n] = nil
	x.free = x.free[:n]
	x.acquired++

	var zero T
	*slot = zero

	return slot
}

// Release returns a slot to the pool. The slot must have been obtained from
// Acquire on the same pool, and must not be used after this call.
func (x *Pool[T]) Release(slot *T) {
	if slot == nil {
		return
	}

	// clear outside the lock, so referenced values may be collected
	var zero T
	*slot = zero

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return
	}

	x.free = append(x.free, slot)
	x.released++
}

// Stats returns a snapshot of the pool's counters.
func (x *Pool[T]) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return Stats{
		Chunks:   len(x.chunks),
		Capacity: len(x.chunks) * x.chunkSize,
		InUse:    int(x.acquired - x.released),
		Acquired: x.acquired,
		Released: x.released,
	}
}

// Close drops all slabs. Slots still held by callers remain valid memory, but
// releasing them after Close is a no-op, and Acquire will panic.
func (x *Pool[T]) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.chunks = nil
	x.free = nil
}

// grow allocates a slab, pushing every slot onto the free stack.
//
// CALLER MUST HOLD x.mu.
func (x *Pool[T]) grow() {
	if x.maxChunks > 0 && len(x.chunks) >= x.maxChunks {
		panic(fmt.Errorf(`%w: limit of %d chunks of %d slots reached`, ErrExhausted, x.maxChunks, x.chunkSize))
	}

	chunk := make([]T, x.chunkSize)
	x.chunks = append(x.chunks, chunk)

	if cap(x.free) < x.chunkSize {
		x.free = make([]*T, 0, len(x.chunks)*x.chunkSize)
	}

	// reverse order, so slots are handed out front to back
	for i := len(chunk) - 1; i >= 0; i-- {
		x.free = append(x.free, &chunk[i])
	}
}
