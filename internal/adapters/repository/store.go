// Package repository provides the durable key/value stores behind the
// dividend cache.
package repository

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value store with per-entry expiry.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. A ttl of zero keeps the entry until it is
	// overwritten or deleted.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)

	// Close releases the store. Further calls return ErrClosed.
	Close() error
}
