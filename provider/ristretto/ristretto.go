package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/shelfcache/internal/keyindex"
	pr "github.com/unkn0wn-root/shelfcache/provider"
)

const defaultSweep = time.Minute

// Provider is an in-process byte store. Ristretto cannot enumerate keys, so a
// per-namespace index is kept next to it for Keys and pattern deletes.
type Provider struct {
	c  *rc.Cache
	ix *keyindex.Index

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// SweepInterval prunes expired index entries; 0 => 1m, <0 disables.
	SweepInterval time.Duration
	// Cost in Ristretto is the stored value length in bytes.
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	p := &Provider{c: c, ix: keyindex.New(nil)}

	sweep := cfg.SweepInterval
	if sweep == 0 {
		sweep = defaultSweep
	}
	if sweep > 0 {
		p.ticker = time.NewTicker(sweep)
		p.stopCh = make(chan struct{})
		p.wg.Add(1)
		go p.sweepLoop()
	}
	return p, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		// evicted by policy or expired; keep the index honest
		p.ix.Remove(key)
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.ix.Remove(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return false, nil
	}
	// make the write visible to the next Get
	p.c.Wait()
	p.ix.Add(key, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if p.ix.Remove(k) {
			n++
		}
		p.c.Del(k)
	}
	return n, nil
}

func (p *Provider) Keys(_ context.Context, pattern string) ([]string, error) {
	candidates, err := p.ix.Match(pattern)
	if err != nil {
		return nil, err
	}
	live := candidates[:0]
	for _, k := range candidates {
		if _, ok := p.c.Get(k); ok {
			live = append(live, k)
		} else {
			p.ix.Remove(k)
		}
	}
	return live, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		if p.stopCh != nil {
			close(p.stopCh)
			p.ticker.Stop()
			p.wg.Wait()
		}
		p.c.Wait()
		p.c.Close()
	})
	return nil
}

func (p *Provider) sweepLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ticker.C:
			p.ix.Sweep()
		case <-p.stopCh:
			return
		}
	}
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
