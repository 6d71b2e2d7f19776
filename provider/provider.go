// Package provider defines the storage abstraction used by shelfcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., expiry headers), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Keys follow the "<namespace>:<part>:<part>" convention. Patterns passed to Keys
// use Redis glob syntax: '*' matches any run of characters (including ':'),
// '?' matches one character, '[...]' a character class and '\' escapes.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs and key enumeration.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes keys in one batch and reports how many existed.
	Del(ctx context.Context, keys ...string) (int, error)

	// Keys returns every live key matching pattern. Order is whatever the
	// backend enumerates in; callers must not assume creation order.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
