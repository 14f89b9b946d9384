package queue

import "time"

// Option applies a configuration option to the CoalescingQueue.
type Option func(*CoalescingQueue)

// WithCapacity sets the maximum number of pending requests.
func WithCapacity(capacity int) Option {
	return func(q *CoalescingQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDraftID labels the queue's metrics.
func WithDraftID(id string) Option {
	return func(q *CoalescingQueue) {
		q.draftID = id
	}
}

// WithClock sets the time source used to stamp requests.
func WithClock(now func() time.Time) Option {
	return func(q *CoalescingQueue) {
		if now != nil {
			q.now = now
		}
	}
}
