package shelfcache

import "time"

const (
	defaultTTL           = 10 * time.Minute
	defaultEvictFraction = 0.1
	defaultOpTimeout     = 2 * time.Second
	defaultGenSweep      = time.Hour
	defaultGenRetention  = 30 * 24 * time.Hour
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
