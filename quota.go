package shelfcache

import (
	"context"

	"github.com/unkn0wn-root/shelfcache/internal/util"
)

// enforceQuota runs before every write into a namespace with a quota. When
// the namespace already holds maxKeys live keys, the first
// floor(maxKeys*evictFraction) keys in enumeration order are deleted in one
// batch. Backends do not report creation time, so this approximates "oldest".
//
// Check-then-evict-then-write is not atomic: concurrent writers to the same
// namespace can overshoot the quota until the next write.
func (s *store) enforceQuota(ctx context.Context, ns string) {
	maxKeys, ok := s.quotas[ns]
	if !ok || maxKeys <= 0 {
		return
	}

	pattern := util.EscapeGlob(ns) + util.Delimiter + "*"
	octx, cancel := s.opCtx(ctx)
	keys, err := s.provider.Keys(octx, pattern)
	cancel()
	if err != nil {
		s.quotaFailed(&QuotaError{Namespace: ns, Stage: "enumerate", Err: err})
		return
	}
	live := len(keys)
	if live < maxKeys {
		return
	}

	n := int(float64(maxKeys) * s.evictFraction)
	if n > live {
		n = live
	}
	if n <= 0 {
		return
	}

	octx, cancel = s.opCtx(ctx)
	deleted, err := s.provider.Del(octx, keys[:n]...)
	cancel()
	if err != nil {
		s.quotaFailed(&QuotaError{Namespace: ns, Stage: "evict", Err: err})
		return
	}
	s.hooks.QuotaEvicted(ns, live, deleted)
	s.log.Info("namespace quota reached; evicted keys", Fields{
		"namespace": ns,
		"max":       maxKeys,
		"live":      live,
		"evicted":   deleted,
	})
}

func (s *store) quotaFailed(err *QuotaError) {
	s.hooks.QuotaEnforceError(err.Namespace, err)
	s.log.Warn("quota enforcement failed; writing anyway", Fields{"namespace": err.Namespace, "stage": err.Stage, "err": err.Err})
}
