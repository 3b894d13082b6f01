/**
 * @description
 * This file defines the `Store` interface for the service's shared cache. It
 * covers the two consumers of Redis in the transfer path: the idempotency
 * coordinator (response caching and processing markers) and the fraud guard
 * (windowed counters for IP rate limiting).
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 */

package cache

import (
	"context"
	"time"
)

// Store defines the cache operations used by the transfer path.
type Store interface {
	// Get returns the value for key. The second return is false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with a TTL.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// SetIfAbsent stores value under key only if the key does not exist.
	// It returns true when the value was stored, false when the key was
	// already held by someone else.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetCount returns the current value of a windowed counter, or zero if
	// the counter does not exist.
	GetCount(ctx context.Context, key string) (int64, error)

	// Increment bumps a windowed counter, starting the window on first use,
	// and returns the count after the bump.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
