// Package cache provides the shared expiring key-value store used for
// cross-request coordination: rate-limit counters, OTP resend throttles and
// pending two-factor challenges.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Store is the shared expiring cache contract. Implementations must treat
// all keys as concurrently accessed; Increment must be atomic within a
// single store instance.
type Store interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key with the given TTL.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Increment atomically increments the counter stored under key and
	// returns the new value. When the key is created (or had expired) the
	// TTL is applied; an existing key keeps its remaining TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Expire resets the TTL of an existing key. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Forget removes key. Removing a missing key is not an error.
	Forget(ctx context.Context, key string) error
}
