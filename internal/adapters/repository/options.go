package repository

import "time"

const (
	defaultBucket                = "dividends"
	defaultKeyPrefix             = "divsnow:"
	defaultOpenTimeout           = time.Second
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	bucket                string
	keyPrefix             string
	openTimeout           time.Duration
	metricsUpdateInterval time.Duration
	now                   func() time.Time
}

// WithMetricsUpdateInterval sets the interval for background entry-count
// metrics. Zero or negative disables the updater.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		o.metricsUpdateInterval = interval
	}
}

// WithBucket sets the bbolt bucket name.
func WithBucket(name string) Option {
	return func(o *options) {
		if name != "" {
			o.bucket = name
		}
	}
}

// WithKeyPrefix sets the prefix applied to every Redis key.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithOpenTimeout bounds how long opening a bbolt file waits for its lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.openTimeout = d
		}
	}
}

// WithClock sets the time source used for expiry by the bolt and memory
// stores. Redis expires keys server-side.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		bucket:                defaultBucket,
		keyPrefix:             defaultKeyPrefix,
		openTimeout:           defaultOpenTimeout,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
