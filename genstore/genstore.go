// Package genstore keeps invalidation generations.
//
// A generation is a counter per scope. shelfcache uses the key namespace as
// the scope ("search", "rankings", ...) plus the global scope "*" for
// patterns that span namespaces. Deletes bump the scope; a fill that
// observed an older generation before fetching skips its write.
package genstore

import (
	"context"
	"time"
)

// GlobalScope is bumped by deletes whose pattern is not confined to one namespace.
const GlobalScope = "*"

// GenStore abstracts where generations live.
// Use Local (default) for in-process gens, or Redis for gens shared by replicas.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, scope string) (uint64, error)
	// SnapshotMany returns gens for many scopes; missing => 0.
	SnapshotMany(ctx context.Context, scopes []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, scope string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
