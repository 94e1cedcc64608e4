// Package workqueue implements the bounded, blocking FIFO that sits
// between the ingestion pipeline's CSV producers and its single matrix
// writer.
package workqueue

import (
	"context"
	"errors"
	"time"
)

// DefaultCapacity is the queue depth convention the ingestion pipeline
// uses (§ bounded queue, default 1024 slots).
const DefaultCapacity = 1024

// ErrClosed is returned by Enqueue once Close has been called.
var ErrClosed = errors.New("workqueue: queue is closed")

// Item is one unit of work traveling from a producer to the consumer. A
// nil Item enqueued internally by Close is the shutdown sentinel; callers
// never construct one directly.
type Item struct {
	T     int
	Mesh  uint32
	Value int32
}

// Queue is a fixed-capacity blocking FIFO of *Item. It is the Go
// replacement for the reference implementation's hand-rolled
// semaphore-and-mutex ring buffer: a buffered channel already gives blocking
// send/receive at a fixed capacity, so the semaphore pair collapses into the
// channel's own accounting.
//
// The shutdown protocol keeps the reference's explicit sentinel rather than
// relying on Go's channel-close-with-drain, because Dequeue's contract is
// "returns nil once, after every producer has been accounted for" and a
// closed, drained channel is indistinguishable from "still filling" to a
// consumer using a plain range loop.
type Queue struct {
	items  chan *Item
	closed chan struct{}
}

// New returns a Queue with the given capacity. A capacity of 0 uses
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:  make(chan *Item, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks until there is room in the queue, ctx is canceled, or the
// queue has been closed. It returns ErrClosed if enqueue is attempted after
// Close, and ctx.Err() if ctx is canceled first.
func (q *Queue) Enqueue(ctx context.Context, item *Item) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an item is available or ctx is canceled. A nil item
// with a nil error is the shutdown sentinel enqueued by Close: the consumer
// that receives it should stop calling Dequeue.
func (q *Queue) Dequeue(ctx context.Context) (*Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DequeueTimeout is the non-blocking-with-deadline variant the reference
// implementation exposes as dequeue_with_timeout. It is not on the
// ingestion pipeline's hot path; it exists for cancellation diagnostics
// that want to sample the queue without committing to an unbounded wait.
func (q *Queue) DequeueTimeout(ctx context.Context, timeout time.Duration) (*Item, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-timer.C:
		return nil, false, nil
	}
}

// Close enqueues the shutdown sentinel and marks the queue closed to
// further producers. It is safe to call exactly once, after every producer
// has joined; calling it again panics on the closed channel, matching the
// "coordinator enqueues one null sentinel" contract rather than silently
// tolerating a protocol violation.
func (q *Queue) Close() {
	close(q.closed)
	q.items <- nil
}

// Len reports the number of items currently buffered, for diagnostics.
func (q *Queue) Len() int { return len(q.items) }

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int { return cap(q.items) }
