// Package worker runs recompute requests off a queue one at a time.
package worker

import (
	"time"

	"github.com/okian/livedraft/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTimeout bounds each recompute. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.timeout = d
		}
	}
}

// WithResultBuffer sets how many results may wait for the consumer.
func WithResultBuffer(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.buffer = n
		}
	}
}
