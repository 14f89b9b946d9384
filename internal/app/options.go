package service

import (
	"time"

	"github.com/okian/livedraft/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithRunID tags the orchestrator's status and logs with a run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithPollInterval sets the delay between polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithRecomputeTimeout bounds each recompute. Zero disables the bound.
func WithRecomputeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.recomputeTimeout = d
		}
	}
}

// WithSnapshotEvery stores a snapshot every n picks. Zero disables snapshots.
func WithSnapshotEvery(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.snapshotEvery = n
		}
	}
}

// WithSnapshotHistory tells backfill how many snapshots the cache keeps so
// it never recreates pruned ones. Zero means all are kept.
func WithSnapshotHistory(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.snapshotHistory = n
		}
	}
}

// WithCheckpoints saves folded state to c every n picks and seeds
// bootstrap from it.
func WithCheckpoints(c Checkpoints, n int) Option {
	return func(o *Orchestrator) {
		o.checkpoints = c
		if n >= 0 {
			o.checkpointEvery = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
