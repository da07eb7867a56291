package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

const scanBatch = 100

// RedisStore keeps entries in Redis under a key prefix and lets the server
// expire them.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	closed  atomic.Bool
	metrics *entriesReporter
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(ctx context.Context, client *redis.Client, opts ...Option) *RedisStore {
	o := newOptions(opts)
	s := &RedisStore{client: client, prefix: o.keyPrefix, metrics: newEntriesReporter()}
	s.metrics.start(ctx, o.metricsUpdateInterval, "redis", s.Len)
	return s
}

// DialRedis connects to addr and verifies the server answers PING.
func DialRedis(ctx context.Context, addr string, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %w", ErrOpenStore, addr, err)
	}
	return NewRedisStore(ctx, client, opts...), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.metrics.stop()
	return s.client.Close()
}
