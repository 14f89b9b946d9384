// Package queue holds pending recompute requests for one draft.
//
// Requests are coalesced: a new plain request replaces every pending plain
// request at or before its pick, so a busy worker only ever sees the newest
// state. Snapshot requests are kept until a worker takes them.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/metrics"
)

const defaultCapacity = 1024

// Request asks for a recompute of Pool. Snapshot marks a result that must
// also be stored in the snapshot history.
type Request struct {
	Pool     model.PoolState
	Snapshot bool
	Enqueued time.Time
}

// Queue is a blocking pull queue of recompute requests.
type Queue interface {
	// Enqueue adds r, dropping requests it supersedes.
	Enqueue(ctx context.Context, r Request) error
	// Next blocks until a request is available, the queue is closed or ctx
	// is done.
	Next(ctx context.Context) (Request, error)
	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// CoalescingQueue implements Queue with a mutex guarded slice.
type CoalescingQueue struct {
	mu       sync.Mutex
	pending  []Request
	wake     chan struct{}
	closed   bool
	capacity int
	draftID  string
	now      func() time.Time
}

// NewCoalescingQueue creates an empty queue.
func NewCoalescingQueue(opts ...Option) *CoalescingQueue {
	q := &CoalescingQueue{
		wake:     make(chan struct{}),
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueDepth(q.draftID, 0)
	return q
}

// Enqueue adds r to the queue. Pending plain requests at or before r's pick
// are dropped, and a pending request for the same pick absorbs r.
func (q *CoalescingQueue) Enqueue(ctx context.Context, r Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if r.Enqueued.IsZero() {
		r.Enqueued = q.now()
	}

	kept := q.pending[:0]
	dropped := 0
	merged := false
	for _, p := range q.pending {
		switch {
		case p.Pool.LastPick == r.Pool.LastPick:
			p.Snapshot = p.Snapshot || r.Snapshot
			merged = true
			kept = append(kept, p)
		case !p.Snapshot && p.Pool.LastPick < r.Pool.LastPick:
			dropped++
		default:
			kept = append(kept, p)
		}
	}
	q.pending = kept

	if merged {
		dropped++
	} else {
		if len(q.pending) >= q.capacity {
			metrics.RecordErrorByComponent("queue", "capacity_exceeded")
			return ErrFull
		}
		q.pending = append(q.pending, r)
	}

	metrics.RecordQueueCoalesced(q.draftID, dropped)
	metrics.UpdateQueueDepth(q.draftID, len(q.pending))
	q.signal()
	return nil
}

// signal wakes every waiting consumer. Callers hold q.mu.
func (q *CoalescingQueue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// Next removes and returns the oldest pending request.
func (q *CoalescingQueue) Next(ctx context.Context) (Request, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Request{}, ErrClosed
		}
		if len(q.pending) > 0 {
			r := q.pending[0]
			q.pending = q.pending[1:]
			metrics.UpdateQueueDepth(q.draftID, len(q.pending))
			q.mu.Unlock()
			return r, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		case <-wake:
		}
	}
}

// Len returns the number of pending requests.
func (q *CoalescingQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close drops pending requests and releases waiting consumers.
func (q *CoalescingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.pending = nil
	metrics.UpdateQueueDepth(q.draftID, 0)
	q.signal()
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *CoalescingQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
