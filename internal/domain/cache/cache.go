// Package cache memoizes dividend fetches per window over a durable store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/repository"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
	"github.com/darylmathison/dividend-stock-analysis/pkg/metrics"
)

// ComputeFunc produces the events of a window on a cache miss.
type ComputeFunc func(ctx context.Context, w model.FetchWindow) (model.FetchResult, error)

// entry is the stored envelope. StoredAt drives expiry so entries written
// to stores without native TTL still age out.
type entry struct {
	StoredAt time.Time             `json:"stored_at"`
	Window   string                `json:"window"`
	Pages    int                   `json:"pages"`
	Events   []model.DividendEvent `json:"events"`
}

// Stats counts cache outcomes since construction.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
	Errors int64 `json:"errors"`
}

// Cache is a read-through cache keyed by the exact (symbol, start, end)
// window. Only complete results are written; errors and partial fetches
// are passed through untouched.
type Cache struct {
	store repository.Store
	ttl   time.Duration
	now   func() time.Time
	log   logger.Logger

	group singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	writes   atomic.Int64
	failures atomic.Int64
}

// New constructs a cache over store.
func New(store repository.Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetOrCompute returns the cached events for w when a fresh entry exists,
// otherwise calls compute. Concurrent callers for the same window share a
// single compute, which runs detached from any one caller's cancellation; a
// cancelled caller returns ctx.Err() while the others keep waiting.
func (c *Cache) GetOrCompute(ctx context.Context, w model.FetchWindow, compute ComputeFunc) (model.FetchResult, error) {
	if compute == nil {
		return model.FetchResult{}, ErrNilCompute
	}
	key := w.Key()

	if res, ok := c.lookup(ctx, key); ok {
		return res, nil
	}

	// the flight outlives any single caller; each caller still honours its own ctx
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// a flight that just finished may have filled the entry
		if res, ok := c.lookup(flight, key); ok {
			return res, nil
		}
		c.misses.Add(1)
		metrics.RecordCacheMiss()

		res, err := compute(flight, w)
		if err != nil {
			return model.FetchResult{}, err
		}
		if !res.Complete {
			c.log.Warn(flight, "partial dividend fetch not cached",
				logger.String("key", key),
				logger.Int("events", len(res.Events)),
				logger.Error(res.Cause),
			)
			return res, nil
		}
		c.write(flight, key, w, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return model.FetchResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.FetchResult{}, r.Err
		}
		if r.Shared {
			c.log.Debug(ctx, "joined in-flight dividend fetch", logger.String("key", key))
		}
		return r.Val.(model.FetchResult), nil
	}
}

// Invalidate drops the entry for w.
func (c *Cache) Invalidate(ctx context.Context, w model.FetchWindow) error {
	return c.store.Delete(ctx, w.Key())
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Errors: c.failures.Load(),
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (model.FetchResult, bool) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return model.FetchResult{}, false
	}
	if err != nil {
		c.fail(ctx, "get", key, err)
		return model.FetchResult{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.fail(ctx, "decode", key, err)
		return model.FetchResult{}, false
	}
	if age := c.now().Sub(e.StoredAt); age >= c.ttl {
		c.log.Debug(ctx, "dividend cache entry expired",
			logger.String("key", key), logger.Duration("age", age))
		return model.FetchResult{}, false
	}

	c.hits.Add(1)
	metrics.RecordCacheHit()
	c.log.Debug(ctx, "dividend cache hit", logger.String("key", key), logger.Int("events", len(e.Events)))
	return model.FetchResult{
		Events:    e.Events,
		Complete:  true,
		FromCache: true,
	}, true
}

func (c *Cache) write(ctx context.Context, key string, w model.FetchWindow, res model.FetchResult) {
	raw, err := json.Marshal(entry{
		StoredAt: c.now(),
		Window:   w.String(),
		Pages:    res.Pages,
		Events:   res.Events,
	})
	if err != nil {
		c.fail(ctx, "encode", key, err)
		return
	}
	if err := c.store.Put(ctx, key, raw, c.ttl); err != nil {
		c.fail(ctx, "put", key, err)
		return
	}
	c.writes.Add(1)
	metrics.RecordCacheWrite()
}

func (c *Cache) fail(ctx context.Context, op, key string, err error) {
	c.failures.Add(1)
	metrics.RecordCacheError(op)
	c.log.Error(ctx, "dividend cache store failure",
		logger.String("op", op), logger.String("key", key), logger.Error(err))
}
