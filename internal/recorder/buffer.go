package recorder

import (
	"sync"
)

// GrowableBuffer is a thread-safe ring buffer that doubles its capacity
// when it fills past 70%. Recorders use it between handler dispatch and
// the database consumer so a slow flush backs up into memory instead of
// stalling the socket read loop.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // read position; write position is (head+count) % len(buf)
	count  int
	closed bool

	totalIn  int64
	totalOut int64
	grows    int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{buf: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send adds an item to the buffer, growing it first if the new item would
// fill it to 70% or more. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := len(b.buf) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.totalIn++

	b.cond.Signal()
	return true
}

// Receive removes and returns the oldest item, blocking until one is
// available or the buffer is closed. Returns the zero value and false
// once the buffer is closed and drained.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive removes and returns the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// pop removes the head item. Must be called with the lock held and count > 0.
func (b *GrowableBuffer[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // drop the reference for GC
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.totalOut++
	return item
}

// DrainTo removes up to max items in FIFO order, or all items if max <= 0.
// Returns nil when the buffer is empty.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.pop())
	}
	return out
}

// Close marks the buffer closed. Send returns false afterwards; receivers
// drain the remaining items and then get false.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Stats returns a snapshot of the buffer counters.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: len(b.buf),
		TotalIn:  b.totalIn,
		TotalOut: b.totalOut,
		Grows:    b.grows,
	}
}

// BufferStats is a snapshot of buffer counters.
type BufferStats struct {
	Count    int
	Capacity int
	TotalIn  int64
	TotalOut int64
	Grows    int
}

// grow doubles the capacity, unwrapping the ring into the new slice.
// Must be called with the lock held.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.buf)*2)
	first := copy(next, b.buf[b.head:min(b.head+b.count, len(b.buf))])
	copy(next[first:], b.buf[:b.count-first])
	b.buf = next
	b.head = 0
	b.grows++
}
