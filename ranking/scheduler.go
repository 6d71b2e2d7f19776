// Package ranking precomputes the hot ranked book lists on a timer and
// publishes them under the same keys request handlers read, so a warmed page
// cannot be told apart from one filled by a live request.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/shelfcache"
)

const (
	defaultInterval     = 2 * time.Hour
	defaultQueryTimeout = 30 * time.Second
)

var (
	ErrNilCache  = errors.New("ranking: cache is required")
	ErrNilSource = errors.New("ranking: source is required")
)

// PassResult summarizes one refresh pass.
type PassResult struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Status is a read-only diagnostic snapshot.
type Status struct {
	RankingKeys int
	Running     bool
}

// Observer receives pass outcomes, e.g. for metrics. Calls are synchronous
// on the scheduler goroutine.
type Observer interface {
	PassCompleted(PassResult)
	DescriptorFailed(d Descriptor, err error)
}

type NopObserver struct{}

func (NopObserver) PassCompleted(PassResult)           {}
func (NopObserver) DescriptorFailed(Descriptor, error) {}

type Options struct {
	Cache  *shelfcache.Cache[[]BookSummary] // required
	Source Source                           // required

	Descriptors  []Descriptor  // nil => DefaultDescriptors()
	Interval     time.Duration // 0 => 2h
	TTL          time.Duration // 0 => shelfcache.TTLRankingPrecompute
	QueryTimeout time.Duration // 0 => 30s

	Clock    clockwork.Clock   // nil => real clock
	Logger   shelfcache.Logger // if nil, NopLogger is used
	Observer Observer          // if nil, NopObserver is used
}

// Scheduler owns one background loop. Stopped -> Start -> Running -> Stop -> Stopped;
// Start while running and Stop while stopped are no-ops.
type Scheduler struct {
	cache        *shelfcache.Cache[[]BookSummary]
	source       Source
	descriptors  []Descriptor
	interval     time.Duration
	ttl          time.Duration
	queryTimeout time.Duration
	clock        clockwork.Clock
	log          shelfcache.Logger
	obs          Observer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(opts Options) (*Scheduler, error) {
	if opts.Cache == nil {
		return nil, ErrNilCache
	}
	if opts.Source == nil {
		return nil, ErrNilSource
	}
	s := &Scheduler{
		cache:        opts.Cache,
		source:       opts.Source,
		descriptors:  opts.Descriptors,
		interval:     opts.Interval,
		ttl:          opts.TTL,
		queryTimeout: opts.QueryTimeout,
		clock:        opts.Clock,
		log:          opts.Logger,
		obs:          opts.Observer,
	}
	if s.descriptors == nil {
		s.descriptors = DefaultDescriptors()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.ttl <= 0 {
		s.ttl = shelfcache.TTLRankingPrecompute
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = defaultQueryTimeout
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = shelfcache.NopLogger{}
	}
	if s.obs == nil {
		s.obs = NopObserver{}
	}
	return s, nil
}

// Start runs one pass immediately on the loop goroutine, then one every
// Interval. It reports whether a new loop was started.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx, s.stopCh, s.done)
	s.log.Info("ranking precompute started", shelfcache.Fields{
		"interval":    s.interval.String(),
		"descriptors": len(s.descriptors),
	})
	return true
}

// Stop cancels future passes and waits for the loop to exit. A pass already
// running completes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info("ranking precompute stopped", nil)
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			// loop ended by ctx, not Stop
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	s.RefreshAll(ctx)

	select {
	case <-stop:
		return
	case <-ctx.Done():
		return
	default:
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every descriptor in order. A failing descriptor is
// logged and keeps its previous entry; the pass continues.
func (s *Scheduler) RefreshAll(ctx context.Context) PassResult {
	start := s.clock.Now()
	res := PassResult{Total: len(s.descriptors)}
	for _, d := range s.descriptors {
		if err := s.refresh(ctx, d); err != nil {
			res.Failed++
			s.obs.DescriptorFailed(d, err)
			s.log.Warn("ranking refresh failed", shelfcache.Fields{"descriptor": d.String(), "err": err})
			continue
		}
		res.Succeeded++
	}
	res.Duration = s.clock.Since(start)

	s.obs.PassCompleted(res)
	s.log.Info("ranking refresh pass complete", shelfcache.Fields{
		"succeeded": res.Succeeded,
		"total":     res.Total,
		"duration":  res.Duration.String(),
	})
	return res
}

// ForceRefresh recomputes a single descriptor now. Repeated calls overwrite
// the same key.
func (s *Scheduler) ForceRefresh(ctx context.Context, d Descriptor) error {
	if err := s.refresh(ctx, d); err != nil {
		return err
	}
	s.log.Debug("ranking force-refreshed", shelfcache.Fields{"key": Key(d)})
	return nil
}

func (s *Scheduler) refresh(ctx context.Context, d Descriptor) error {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	books, err := s.source.Rankings(qctx, d.Query())
	cancel()
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := s.cache.Set(ctx, Key(d), books, s.ttl); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Status counts the live ranking keys, precomputed or not.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	n, err := s.cache.Store().Count(ctx, Namespace+":*")
	return Status{RankingKeys: n, Running: s.Running()}, err
}
