// Package shelfcache is the caching layer of the book catalog: a byte store
// over a pluggable Provider with per-namespace key quotas, a typed Cache[V]
// with get-or-fill, and a generation guard that keeps a fill from writing a
// value fetched before a concurrent invalidation.
//
// Components:
//   - Provider: byte store with TTL and key enumeration (Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - GenStore: generation counter per namespace. Local (in-process) by
//     default, optional Redis implementation shared by replicas.
//
// Keys:
//
//	<namespace>:<part>:<part>  - built with GenerateKey
//
// The namespace (segment before the first ':') selects the quota and the
// generation scope. Quotas are enforced on writes only: when a namespace
// already holds maxKeys live keys, the first maxKeys*EvictFraction keys the
// backend enumerates are deleted before the write.
//
// Fill pattern:
//
//	books := shelfcache.NewCache(shelfcache.CacheOptions[[]Book]{Store: store})
//	key   := shelfcache.GenerateKey("search", "local", q)
//	v, err := books.Cached(ctx, key, fetchFromDB, shelfcache.TTLSearchResults)
package shelfcache
