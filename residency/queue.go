package residency

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue collects records from many producers during a frame. A single
// consumer drains it between frames.
type Queue[T any] struct {
	sync.Mutex

	items deque.Deque[T]

	// Max number of queued items; 0 means unbounded.
	capacity int

	dropped uint64
}

// Create a queue that holds at most capacity items. A capacity of 0 disables
// the limit.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{capacity: capacity}
}

// Append an item. Returns false if the queue is full and the item was
// dropped.
func (q *Queue[T]) Push(item T) bool {
	return q.PushLimit(item, 0)
}

// Append an item unless the queue already holds limit items. The queue
// capacity still applies; a limit of 0 adds no further bound.
func (q *Queue[T]) PushLimit(item T, limit int) bool {
	q.Lock()
	defer q.Unlock()

	n := q.items.Len()
	if (q.capacity > 0 && n >= q.capacity) || (limit > 0 && n >= limit) {
		q.dropped++
		return false
	}
	q.items.PushBack(item)
	return true
}

// Remove and return all queued items in insertion order.
func (q *Queue[T]) Drain() []T {
	q.Lock()
	defer q.Unlock()

	out := make([]T, 0, q.items.Len())
	for q.items.Len() != 0 {
		out = append(out, q.items.PopFront())
	}
	return out
}

func (q *Queue[T]) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.items.Len()
}

// The number of items rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	q.Lock()
	defer q.Unlock()
	return q.dropped
}
