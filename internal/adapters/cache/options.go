package cache

import "github.com/okian/livedraft/pkg/logger"

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithHistoryLimit keeps at most n snapshots, dropping the oldest. Zero keeps
// every snapshot.
func WithHistoryLimit(n int) Option {
	return func(c *Cache) {
		c.historyLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}
