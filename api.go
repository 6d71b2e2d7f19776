package shelfcache

import (
	"context"
	"time"

	gen "github.com/unkn0wn-root/shelfcache/genstore"
	pr "github.com/unkn0wn-root/shelfcache/provider"
)

// Store is the byte-level cache service. It is constructed once at process
// start with New and passed to everything that reads, fills or invalidates
// the cache. Values are framed on write and validated on read; typed access
// goes through Cache[V].
type Store interface {
	Enabled() bool
	Close(context.Context) error

	// Get returns (payload, true, nil) on hit. A corrupt entry is deleted and
	// reported as a miss. Backend failures are returned as *OpError.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set enforces the namespace quota, then writes. ttl <= 0 => the
	// namespace TTL, else DefaultTTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetWithGen is Set guarded by a generation observed with SnapshotGen.
	// If the key's generation moved, the write is skipped and nil returned.
	SetWithGen(ctx context.Context, key string, value []byte, observedGen uint64, ttl time.Duration) error

	// SnapshotGen returns the current generation of key's namespace.
	SnapshotGen(ctx context.Context, key string) uint64

	// Del removes key and bumps its namespace generation.
	Del(ctx context.Context, key string) error

	// Discard removes an entry the caller could not use (e.g. it failed to
	// decode). No generation bump; failures are logged only.
	Discard(ctx context.Context, key, reason string)

	// DeletePattern removes every key matching the glob in one batch and
	// returns how many were deleted.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Count returns the number of live keys matching the glob.
	Count(ctx context.Context, pattern string) (int, error)
}

// Options tune the store. Only Provider is required; others have sensible defaults.
type Options struct {
	Provider pr.Provider

	Logger     Logger        // if nil, NopLogger is used
	Hooks      Hooks         // if nil, NopHooks is used
	DefaultTTL time.Duration // 0 => 10m
	// NamespaceTTL overrides DefaultTTL for writes without an explicit ttl,
	// e.g. {NSTrending: cfg.TrendingTTL}.
	NamespaceTTL map[string]time.Duration

	// Quotas maps namespace -> maxKeys. nil => DefaultQuotas(); pass an empty
	// map to disable quotas. maxKeys <= 0 never evicts.
	Quotas map[string]int
	// EvictFraction of maxKeys removed when a namespace is full; 0 => 0.1.
	EvictFraction float64

	// OpTimeout bounds every provider call; 0 => 2s, <0 disables.
	OpTimeout time.Duration

	GenStore        gen.GenStore  // nil => genstore.Local (in-process)
	CleanupInterval time.Duration // local gen cleanup; 0 => 1h
	GenRetention    time.Duration // local gen retention; 0 => 30d

	Disabled bool // default false (enabled)
}

func New(opts Options) (Store, error) {
	return newStore(opts)
}
