// Package queue provides a small FIFO used to buffer frames.
package queue

// Queue is a FIFO of T values. It is not safe for concurrent use.
type Queue[T any] struct {
	items []T
}

// New creates a queue with room for prealloc items.
func New[T any](prealloc int) *Queue[T] {
	return &Queue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds items to the tail of the queue.
func (q *Queue[T]) Enqueue(items ...T) {
	q.items = append(q.items, items...)
}

// Dequeue removes and returns the item at the head of the queue.
// ok is false when the queue is empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	return q.items[0], true
}

// Reset empties the queue.
func (q *Queue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of queued items.
func (q *Queue[T]) Length() int {
	return len(q.items)
}
