package shelfcache

import (
	"context"
	"time"

	gen "github.com/unkn0wn-root/shelfcache/genstore"
	"github.com/unkn0wn-root/shelfcache/internal/util"
	"github.com/unkn0wn-root/shelfcache/internal/wire"
	pr "github.com/unkn0wn-root/shelfcache/provider"
)

type store struct {
	provider      pr.Provider
	log           Logger
	hooks         Hooks
	enabled       bool
	defaultTTL    time.Duration
	nsTTL         map[string]time.Duration
	quotas        map[string]int
	evictFraction float64
	opTimeout     time.Duration
	gen           gen.GenStore
	ownsGen       bool
}

var _ Store = (*store)(nil)

func newStore(opts Options) (*store, error) {
	if opts.Provider == nil {
		return nil, ErrNilProvider
	}

	s := &store{
		provider: opts.Provider,
		enabled:  !opts.Disabled,
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.defaultTTL = coalesce(opts.DefaultTTL, defaultTTL)
	s.nsTTL = opts.NamespaceTTL
	s.evictFraction = coalesce(opts.EvictFraction, defaultEvictFraction)
	s.opTimeout = coalesce(opts.OpTimeout, defaultOpTimeout)

	s.quotas = opts.Quotas
	if s.quotas == nil {
		s.quotas = DefaultQuotas()
	}

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		s.gen = gen.NewLocal(gen.LocalOptions{
			CleanupInterval: coalesce(opts.CleanupInterval, defaultGenSweep),
			Retention:       coalesce(opts.GenRetention, defaultGenRetention),
		})
		s.ownsGen = true
	}
	return s, nil
}

func (s *store) Enabled() bool { return s.enabled }

func (s *store) Close(ctx context.Context) error {
	if s.ownsGen {
		_ = s.gen.Close(ctx)
	}
	return s.provider.Close(ctx)
}

// opCtx bounds a single provider call.
func (s *store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.enabled {
		return nil, false, nil
	}
	octx, cancel := s.opCtx(ctx)
	raw, ok, err := s.provider.Get(octx, key)
	cancel()
	if err != nil {
		s.hooks.BackendError("get", key, err)
		return nil, false, &OpError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	payload, err := wire.Decode(raw)
	if err != nil {
		s.Discard(ctx, key, "corrupt")
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.enabled {
		return nil
	}
	ns := util.Namespace(key)
	if ttl <= 0 {
		ttl = s.ttlFor(ns)
	}
	s.enforceQuota(ctx, ns)

	octx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.provider.Set(octx, key, wire.Encode(value), ttl)
	if err != nil {
		s.hooks.BackendError("set", key, err)
		return &OpError{Op: "set", Key: key, Err: err}
	}
	if !ok {
		s.hooks.ProviderSetRejected(key)
		s.log.Debug("set rejected by provider (pressure)", Fields{"key": key})
	}
	return nil
}

func (s *store) ttlFor(ns string) time.Duration {
	if d, ok := s.nsTTL[ns]; ok && d > 0 {
		return d
	}
	return s.defaultTTL
}

func (s *store) SetWithGen(ctx context.Context, key string, value []byte, observedGen uint64, ttl time.Duration) error {
	if !s.enabled {
		return nil
	}
	if s.SnapshotGen(ctx, key) != observedGen {
		// generation moved; skip stale write
		s.hooks.StaleWriteSkipped(key)
		s.log.Debug("SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observedGen})
		return nil
	}
	return s.Set(ctx, key, value, ttl)
}

// SnapshotGen sums the namespace and global scopes. Both only grow, so any
// bump to either changes the sum.
func (s *store) SnapshotGen(ctx context.Context, key string) uint64 {
	ns := util.Namespace(key)
	m, err := s.gen.SnapshotMany(ctx, []string{ns, gen.GlobalScope})
	if err != nil {
		// treat as 0: a write observed under the same failure still lands
		s.hooks.GenSnapshotError(2, err)
		s.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		return 0
	}
	return m[ns] + m[gen.GlobalScope]
}

func (s *store) bumpGen(ctx context.Context, scope string) {
	if _, err := s.gen.Bump(ctx, scope); err != nil {
		s.hooks.GenBumpError(scope, err)
		s.log.Error("gen bump error", Fields{"scope": scope, "err": err})
	}
}

func (s *store) Del(ctx context.Context, key string) error {
	if !s.enabled {
		return nil
	}
	s.bumpGen(ctx, util.Namespace(key))

	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.provider.Del(octx, key); err != nil {
		s.hooks.BackendError("del", key, err)
		return &OpError{Op: "del", Key: key, Err: err}
	}
	return nil
}

func (s *store) Discard(ctx context.Context, key, reason string) {
	s.hooks.SelfHeal(key, reason)
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.provider.Del(octx, key); err != nil {
		s.hooks.BackendError("del", key, err)
		s.log.Warn("self-heal delete failed", Fields{"key": key, "reason": reason, "err": err})
		return
	}
	s.log.Debug("self-healed entry", Fields{"key": key, "reason": reason})
}

func (s *store) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	scope, ok := util.PatternNamespace(pattern)
	if !ok {
		scope = gen.GlobalScope
	}
	s.bumpGen(ctx, scope)

	keys, err := s.keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	octx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.provider.Del(octx, keys...)
	if err != nil {
		s.hooks.BackendError("del", pattern, err)
		return 0, &OpError{Op: "del", Key: pattern, Err: err}
	}
	return n, nil
}

func (s *store) Count(ctx context.Context, pattern string) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	keys, err := s.keys(ctx, pattern)
	return len(keys), err
}

func (s *store) keys(ctx context.Context, pattern string) ([]string, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	keys, err := s.provider.Keys(octx, pattern)
	if err != nil {
		s.hooks.BackendError("keys", pattern, err)
		return nil, &OpError{Op: "keys", Key: pattern, Err: err}
	}
	return keys, nil
}
