package event

import "sync"

// queue is a thread-safe FIFO of events for the Run loop.
//
// The queue is unbounded unless a capacity is set. It signals through a
// channel so the Run loop can wait on it next to ctx.Done().
type queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int // 0 = unbounded
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newQueue(capacity int) *queue {
	return &queue{
		events:   make([]Event, 0, 64),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed or full.
func (q *queue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.capacity > 0 && len(q.events) >= q.capacity {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *queue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil, false
	}

	e := q.events[0]
	q.events[0] = nil // release the payload for GC
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed when the queue is closed.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes waiters.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
