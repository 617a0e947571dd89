package engine

import (
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
)

// Source says where a collection change came from.
type Source int

const (
	// SourceLocal is a write made by this process through the pipeline.
	SourceLocal Source = iota + 1
	// SourceRemote is a snapshot pushed by a remote subscription.
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Change reports that one collection may have changed.
//
// A Change with Err set is terminal: the source will not deliver again and
// the engine publishes an error projection.
type Change struct {
	Kind   ir.Kind
	Source Source
	Err    error
}

// changeQueue is a thread-safe FIFO queue of remote changes.
//
// Subscription goroutines enqueue; the engine's Run loop dequeues. The queue
// is unbounded so a slow listener never blocks a subscription.
//
// The signal channel lets the Run loop wait on the queue and on context
// cancellation in one select.
type changeQueue struct {
	mu      sync.Mutex
	changes []Change
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]Change, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a change to the back of the queue.
// Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.changes = append(q.changes, c)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front change without blocking.
func (q *changeQueue) TryDequeue() (Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return Change{}, false
	}

	c := q.changes[0]
	// Clear the slot so the error it may hold can be collected.
	q.changes[0] = Change{}

	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}

	return c, true
}

// Wait returns a channel that signals when changes may be available. It is
// closed when the queue is closed.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close stops further enqueues and wakes any waiter.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
