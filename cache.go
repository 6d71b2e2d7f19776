package shelfcache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/shelfcache/codec"
)

// FetchFunc loads a value from the source of truth on a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// CacheOptions configure a typed view over a Store.
type CacheOptions[V any] struct {
	Store Store // required

	Codec      c.Codec[V]    // nil => codec.JSON[V]
	Logger     Logger        // if nil, NopLogger is used
	DefaultTTL time.Duration // 0 => the store's default

	// Coalesce deduplicates concurrent Cached misses on the same key so only
	// one fetch runs. Off by default: concurrent misses each call fetch.
	// Coalesced callers share the first caller's context.
	Coalesce bool
}

// Cache is a typed view over a Store. Reads never fail: a backend error or
// an undecodable entry is a miss. Writes return their error; callers that
// treat the cache as best-effort log and move on.
type Cache[V any] struct {
	store      Store
	codec      c.Codec[V]
	log        Logger
	defaultTTL time.Duration
	coalesce   bool
	flight     singleflight.Group
}

func NewCache[V any](opts CacheOptions[V]) (*Cache[V], error) {
	if opts.Store == nil {
		return nil, ErrNilStore
	}
	cc := &Cache[V]{
		store:      opts.Store,
		codec:      opts.Codec,
		defaultTTL: opts.DefaultTTL,
		coalesce:   opts.Coalesce,
	}
	if cc.codec == nil {
		cc.codec = c.JSON[V]{}
	}
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	return cc, nil
}

func (cc *Cache[V]) Store() Store { return cc.store }

// Get returns (value, true) on hit and (zero, false) on miss, decode failure
// (entry removed) or backend error (logged).
func (cc *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, ok, err := cc.store.Get(ctx, key)
	if err != nil {
		cc.log.Warn("cache get failed; treating as miss", Fields{"key": key, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	v, err := cc.codec.Decode(raw)
	if err != nil {
		cc.store.Discard(ctx, key, "value_decode")
		return zero, false
	}
	return v, true
}

// Set encodes and writes v. ttl <= 0 => the cache default.
func (cc *Cache[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) error {
	payload, err := cc.codec.Encode(v)
	if err != nil {
		return err
	}
	return cc.store.Set(ctx, key, payload, cc.ttl(ttl))
}

func (cc *Cache[V]) Del(ctx context.Context, key string) error {
	return cc.store.Del(ctx, key)
}

func (cc *Cache[V]) DeletePattern(ctx context.Context, pattern string) (int, error) {
	return cc.store.DeletePattern(ctx, pattern)
}

// Cached returns the cached value for key or fetches, stores and returns it.
// The only error returned is fetch's; a failed cache write is logged.
//
// If the key's namespace is invalidated while fetch runs, the fetched value
// is returned but not written, so an invalidation is never undone by a slow
// fill.
func (cc *Cache[V]) Cached(ctx context.Context, key string, fetch FetchFunc[V], ttl time.Duration) (V, error) {
	if v, ok := cc.Get(ctx, key); ok {
		return v, nil
	}
	if !cc.coalesce {
		return cc.fill(ctx, key, fetch, ttl)
	}
	res, err, _ := cc.flight.Do(key, func() (any, error) {
		return cc.fill(ctx, key, fetch, ttl)
	})
	v, _ := res.(V)
	return v, err
}

func (cc *Cache[V]) fill(ctx context.Context, key string, fetch FetchFunc[V], ttl time.Duration) (V, error) {
	obs := cc.store.SnapshotGen(ctx, key)
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	payload, err := cc.codec.Encode(v)
	if err != nil {
		cc.log.Warn("cache fill encode failed", Fields{"key": key, "err": err})
		return v, nil
	}
	if err := cc.store.SetWithGen(ctx, key, payload, obs, cc.ttl(ttl)); err != nil {
		cc.log.Warn("cache fill write failed", Fields{"key": key, "err": err})
	}
	return v, nil
}

func (cc *Cache[V]) ttl(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return cc.defaultTTL
}
