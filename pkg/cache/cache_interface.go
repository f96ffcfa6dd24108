package cache

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when another holder owns the lock
var ErrLockNotAcquired = errors.New("lock not acquired")

// Cache is the contract for the cache layer.
// Cached values are a performance aid only, never the source of truth.
type Cache interface {
	// Get unmarshals the cached value into dest.
	// found = false on a cache miss, dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores value with a TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error

	Exists(ctx context.Context, key string) (bool, error)
}

// Lock is a held distributed lock
type Lock interface {
	// Release frees the lock if it is still owned by this holder
	Release(ctx context.Context) error
}

// Locker hands out short-lived mutual exclusion keyed by name.
// Used for per-cart checkout and per-order webhook serialization.
type Locker interface {
	// Acquire returns ErrLockNotAcquired when the key is held elsewhere
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
