// Package cache holds short-lived keyed entries shared by the auth engine:
// the token revocation list and pending OAuth states. The in-memory
// implementation suits a single process; Redis makes the entries visible to
// every instance.
package cache

import (
	"context"
	"time"
)

// Cache stores string values that disappear after their TTL.
type Cache interface {
	// Add stores value under key for ttl, replacing any previous entry.
	// A non-positive ttl is ignored.
	Add(ctx context.Context, key, value string, ttl time.Duration) error

	// Contains reports whether a live entry exists for key.
	Contains(ctx context.Context, key string) (bool, error)

	// Take atomically removes and returns a live entry. At most one caller
	// observes ok=true for a given Add.
	Take(ctx context.Context, key string) (value string, ok bool, err error)

	// Expire drops entries whose TTL elapsed and reports how many went.
	// Backends with native expiry return zero.
	Expire(ctx context.Context) (int, error)
}
