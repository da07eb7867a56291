package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Compile-time check to ensure BoltStore implements Store.
var _ Store = (*BoltStore)(nil)

// headerSize is the expiry prefix written before every value.
const headerSize = 8

var errCorruptEntry = errors.New("corrupt entry")

// BoltStore keeps entries in a single bbolt file. Each value is prefixed
// with its expiry as big-endian unix nanoseconds, zero meaning none.
type BoltStore struct {
	db      *bolt.DB
	bucket  []byte
	opts    *options
	closed  atomic.Bool
	metrics *entriesReporter
}

// NewBoltStore opens or creates the bbolt file at path, creating its
// directory if absent.
func NewBoltStore(ctx context.Context, path string, opts ...Option) (*BoltStore, error) {
	o := newOptions(opts)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenStore, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: o.openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenStore, path, err)
	}
	bucket := []byte(o.bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create bucket %q: %w", ErrOpenStore, o.bucket, err)
	}

	s := &BoltStore{db: db, bucket: bucket, opts: o, metrics: newEntriesReporter()}
	s.metrics.start(ctx, o.metricsUpdateInterval, "bolt", s.Len)
	return s, nil
}

// Path returns the file backing the store.
func (s *BoltStore) Path() string { return s.db.Path() }

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var (
		out     []byte
		expired bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		payload, live, err := s.decode(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if !live {
			expired = true
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		out = append([]byte(nil), payload...)
		return nil
	})
	if expired {
		_ = s.Delete(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var expires int64
	if ttl > 0 {
		expires = s.opts.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expires))
	copy(buf[headerSize:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), buf)
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

func (s *BoltStore) Len(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, v []byte) error {
			if _, live, err := s.decode(v); err == nil && live {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (s *BoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.metrics.stop()
	return s.db.Close()
}

func (s *BoltStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *BoltStore) decode(raw []byte) (payload []byte, live bool, err error) {
	if len(raw) < headerSize {
		return nil, false, errCorruptEntry
	}
	expires := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	live = expires == 0 || s.opts.now().UnixNano() < expires
	return raw[headerSize:], live, nil
}
