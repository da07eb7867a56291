package cache

import (
	"time"

	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
)

// DefaultTTL is how long a fetched window stays fresh.
const DefaultTTL = 30 * 24 * time.Hour

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long entries stay fresh after they are written.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used to stamp and expire entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
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
