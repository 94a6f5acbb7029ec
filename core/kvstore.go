package core

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyedStore implementations for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// KeyedStore is a TTL-bound key/value store. It backs the short-lived
// server-side state (email verification codes, registry lookups) so that
// tests run on an in-memory map while production uses a durable store.
type KeyedStore interface {
	// Put stores val under key, overwriting any prior value. A zero ttl means no expiry.
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Remove deletes key and reports whether it was present.
	Remove(ctx context.Context, key string) (bool, error)
	// Take atomically gets and removes key.
	Take(ctx context.Context, key string) ([]byte, error)
}
