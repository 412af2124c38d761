package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. A bounded queue drops its oldest
// items once it holds max of them.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	max     int
	dropped int
}

// New creates a new empty unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// NewBounded creates a queue holding at most max items. max <= 0 means
// unbounded.
func NewBounded[T any](max int) *Queue[T] {
	q := New[T]()
	if max > 0 {
		q.max = max
	}
	return q
}

// Push appends items to the queue, evicting the oldest ones if the queue
// is bounded and full.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.max > 0 && len(q.items) > q.max {
		over := len(q.items) - q.max
		q.dropped += over
		q.items = append(q.items[:0], q.items[over:]...)
	}
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted since creation.
func (q *Queue[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
