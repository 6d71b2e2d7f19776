package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localGen struct {
	gen       uint64
	updatedAt time.Time
}

// Local keeps generations in-process (default).
// Optional cleanup loop prunes scopes that have not been bumped for retention.
type Local struct {
	mu    sync.RWMutex
	gens  map[string]localGen
	clock clockwork.Clock

	ticker    clockwork.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*Local)(nil)

type LocalOptions struct {
	CleanupInterval time.Duration // 0 disables the loop
	Retention       time.Duration // 0 disables pruning
	Clock           clockwork.Clock
}

func NewLocal(opts LocalOptions) *Local {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Local{gens: make(map[string]localGen), clock: clock}
	if opts.CleanupInterval > 0 && opts.Retention > 0 {
		s.ticker = clock.NewTicker(opts.CleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.Chan():
					s.Cleanup(opts.Retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, scope string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[scope]
	s.mu.RUnlock()
	return e.gen, nil
}

// SnapshotMany reads all scopes under a single read lock.
func (s *Local) SnapshotMany(_ context.Context, scopes []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(scopes))
	s.mu.RLock()
	for _, sc := range scopes {
		out[sc] = s.gens[sc].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, scope string) (uint64, error) {
	now := s.clock.Now()
	s.mu.Lock()
	e := s.gens[scope]
	e.gen++
	e.updatedAt = now
	s.gens[scope] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Cleanup forgets scopes idle for longer than retention. A forgotten scope
// reads as 0 again, which only matters for fills that straddle the prune.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
