package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// ErrUnavailable is returned when the backing store cannot be reached
// within the caller's deadline. Callers in the auth core treat it as a
// closed gate, never as permission.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store is the key-value contract the token lifecycle and permission
// resolver depend on. DeleteIfPresent and CompareAndDelete must be atomic
// at the store level: when several service instances race on the same key,
// at most one caller observes true.
type Store interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	DeleteIfPresent(ctx context.Context, key string) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// DeleteByPrefix removes every key under the prefix, best effort.
	// Used by bulk revocation and role-change decision busting.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}
