// Package keyindex tracks live keys per namespace for in-process providers
// that cannot enumerate their own keyspace.
package keyindex

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/shelfcache/internal/util"
)

// Index maps namespace -> key -> expiry (zero = no expiry).
type Index struct {
	mu    sync.RWMutex
	byNS  map[string]map[string]time.Time
	clock clockwork.Clock
}

func New(clock clockwork.Clock) *Index {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Index{byNS: make(map[string]map[string]time.Time), clock: clock}
}

func (ix *Index) Add(key string, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = ix.clock.Now().Add(ttl)
	}
	ns := util.Namespace(key)
	ix.mu.Lock()
	keys, ok := ix.byNS[ns]
	if !ok {
		keys = make(map[string]time.Time)
		ix.byNS[ns] = keys
	}
	keys[key] = exp
	ix.mu.Unlock()
}

// Remove drops key and reports whether it was present and unexpired.
func (ix *Index) Remove(key string) bool {
	ns := util.Namespace(key)
	now := ix.clock.Now()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	keys := ix.byNS[ns]
	exp, ok := keys[key]
	if !ok {
		return false
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(ix.byNS, ns)
	}
	return exp.IsZero() || now.Before(exp)
}

// Expired reports whether key is unknown or past its expiry.
func (ix *Index) Expired(key string) bool {
	ix.mu.RLock()
	exp, ok := ix.byNS[util.Namespace(key)][key]
	ix.mu.RUnlock()
	if !ok {
		return true
	}
	return !exp.IsZero() && !ix.clock.Now().Before(exp)
}

// Match returns live keys matching pattern. Namespace-confined patterns only
// visit their own namespace.
func (ix *Index) Match(pattern string) ([]string, error) {
	g, err := util.CompileGlob(pattern)
	if err != nil {
		return nil, err
	}
	now := ix.clock.Now()
	var out []string
	visit := func(keys map[string]time.Time) {
		for k, exp := range keys {
			if !exp.IsZero() && !now.Before(exp) {
				continue
			}
			if g.Match(k) {
				out = append(out, k)
			}
		}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ns, ok := util.PatternNamespace(pattern); ok {
		visit(ix.byNS[ns])
		return out, nil
	}
	for _, keys := range ix.byNS {
		visit(keys)
	}
	return out, nil
}

// Sweep forgets expired keys and returns them so the owner can drop the values.
func (ix *Index) Sweep() []string {
	now := ix.clock.Now()
	var expired []string
	ix.mu.Lock()
	for ns, keys := range ix.byNS {
		for k, exp := range keys {
			if !exp.IsZero() && !now.Before(exp) {
				delete(keys, k)
				expired = append(expired, k)
			}
		}
		if len(keys) == 0 {
			delete(ix.byNS, ns)
		}
	}
	ix.mu.Unlock()
	return expired
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, keys := range ix.byNS {
		n += len(keys)
	}
	return n
}
