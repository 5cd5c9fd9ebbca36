package queue

import (
	"sync"
)

// Ring is a thread-safe FIFO that grows up to a maximum capacity and then
// drops the oldest items.
type Ring[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	max      int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// Stats contains ring statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// New creates a ring with the given initial capacity that never grows past
// maxCapacity.
func New[T any](initialCapacity, maxCapacity int) *Ring[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	r := &Ring[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		max:      maxCapacity,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Send appends item. At maximum capacity the oldest item is discarded.
// Returns false if the ring is closed.
func (r *Ring[T]) Send(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	threshold := max((r.capacity*70)/100, 1)
	if r.count+1 >= threshold && r.capacity < r.max {
		r.grow()
	}

	if r.count == r.capacity {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % r.capacity
		r.count--
		r.dropped++
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.totalReceived++

	r.cond.Signal()
	return true
}

// Receive blocks until an item is available or the ring is closed and empty.
func (r *Ring[T]) Receive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// TryReceive returns the oldest item without blocking.
func (r *Ring[T]) TryReceive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// DrainTo removes up to limit items (all of them if limit <= 0).
func (r *Ring[T]) DrainTo(limit int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	for i := range out {
		out[i] = r.popLocked()
	}
	return out
}

// Close stops accepting items. Receivers still get what is buffered.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Count:         r.count,
		Capacity:      r.capacity,
		TotalReceived: r.totalReceived,
		TotalSent:     r.totalSent,
		Dropped:       r.dropped,
		ResizeCount:   r.resizeCount,
	}
}

func (r *Ring[T]) popLocked() T {
	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.totalSent++
	return item
}

// grow doubles capacity, capped at max. Must be called with lock held.
func (r *Ring[T]) grow() {
	newCapacity := min(r.capacity*2, r.max)
	newBuf := make([]T, newCapacity)

	if r.count > 0 {
		if r.head < r.tail {
			copy(newBuf, r.buf[r.head:r.tail])
		} else {
			n := copy(newBuf, r.buf[r.head:])
			copy(newBuf[n:], r.buf[:r.tail])
		}
	}

	r.buf = newBuf
	r.head = 0
	r.tail = r.count % newCapacity
	r.capacity = newCapacity
	r.resizeCount++
}
