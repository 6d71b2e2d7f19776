package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/shelfcache/internal/util"
	pr "github.com/unkn0wn-root/shelfcache/provider"
)

// expiryLen is the unix-nano deadline prepended to every stored value.
// BigCache only has a global LifeWindow, so per-entry TTLs live in the entry.
const expiryLen = 8

type Provider struct {
	c     *bc.BigCache
	clock clockwork.Clock
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // upper bound for any entry; 0 => 24h
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	Clock              clockwork.Clock
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Provider{c: c, clock: clock}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, live := p.unframe(b)
	if !live {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var deadline int64
	if ttl > 0 {
		deadline = p.clock.Now().Add(ttl).UnixNano()
	}
	framed := make([]byte, expiryLen+len(value))
	binary.BigEndian.PutUint64(framed[:expiryLen], uint64(deadline))
	copy(framed[expiryLen:], value)
	if err := p.c.Set(key, framed); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		b, err := p.c.Get(k)
		if err != nil {
			continue
		}
		if _, live := p.unframe(b); live {
			n++
		}
		if err := p.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return n, err
		}
	}
	return n, nil
}

// Keys walks every shard; BigCache has no secondary index.
func (p *Provider) Keys(_ context.Context, pattern string) ([]string, error) {
	g, err := util.CompileGlob(pattern)
	if err != nil {
		return nil, err
	}
	prefix := util.LiteralPrefix(pattern)
	var out []string
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry evicted between SetNext and Value
			continue
		}
		k := e.Key()
		if len(k) < len(prefix) || k[:len(prefix)] != prefix || !g.Match(k) {
			continue
		}
		if _, live := p.unframe(e.Value()); live {
			out = append(out, k)
		}
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

func (p *Provider) unframe(b []byte) ([]byte, bool) {
	if len(b) < expiryLen {
		return nil, false
	}
	deadline := int64(binary.BigEndian.Uint64(b[:expiryLen]))
	if deadline != 0 && p.clock.Now().UnixNano() >= deadline {
		return nil, false
	}
	return b[expiryLen:], true
}
