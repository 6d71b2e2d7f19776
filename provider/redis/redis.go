package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/shelfcache/internal/util"
	pr "github.com/unkn0wn-root/shelfcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const (
	defaultScanCount   = 100
	defaultIndexPrefix = "idx:"
)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
	index       bool
	indexPrefix string
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client

	// ScanCount is the COUNT hint for SCAN; 0 => 100.
	ScanCount int64

	// NamespaceIndex keeps a SET of live keys per namespace (SADD on Set,
	// SREM on Del) so that Keys for a namespace-confined pattern reads one
	// set instead of scanning the whole keyspace. Patterns whose namespace
	// segment is itself a glob still fall back to SCAN.
	NamespaceIndex bool
	IndexPrefix    string // 0 => "idx:"
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		scanCount:   cfg.ScanCount,
		index:       cfg.NamespaceIndex,
		indexPrefix: cfg.IndexPrefix,
	}
	if p.scanCount <= 0 {
		p.scanCount = defaultScanCount
	}
	if p.indexPrefix == "" {
		p.indexPrefix = defaultIndexPrefix
	}
	return p, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per provider contract
	}
	if !p.index {
		if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
			return false, err
		}
		return true, nil
	}

	_, err := p.rdb.Pipelined(ctx, func(pp goredis.Pipeliner) error {
		pp.Set(ctx, key, value, ttl)
		pp.SAdd(ctx, p.indexKey(util.Namespace(key)), key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if !p.index {
		n, err := p.rdb.Del(ctx, keys...).Result()
		return int(n), err
	}

	byNS := make(map[string][]any)
	for _, k := range keys {
		ns := util.Namespace(k)
		byNS[ns] = append(byNS[ns], k)
	}
	var del *goredis.IntCmd
	_, err := p.rdb.Pipelined(ctx, func(pp goredis.Pipeliner) error {
		del = pp.Del(ctx, keys...)
		for ns, members := range byNS {
			pp.SRem(ctx, p.indexKey(ns), members...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(del.Val()), nil
}

func (p *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	if p.index {
		if ns, ok := util.PatternNamespace(pattern); ok {
			return p.indexedKeys(ctx, ns, pattern)
		}
	}
	return p.scanKeys(ctx, pattern)
}

// scanKeys walks the whole keyspace with SCAN MATCH.
func (p *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := p.rdb.Scan(ctx, 0, pattern, p.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// indexedKeys reads the namespace set, filters by pattern and prunes members
// whose key has expired since it was indexed.
func (p *Redis) indexedKeys(ctx context.Context, ns, pattern string) ([]string, error) {
	g, err := util.CompileGlob(pattern)
	if err != nil {
		return nil, err
	}
	members, err := p.rdb.SMembers(ctx, p.indexKey(ns)).Result()
	if err != nil {
		return nil, err
	}
	candidates := members[:0]
	for _, m := range members {
		if g.Match(m) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	exists := make([]*goredis.IntCmd, len(candidates))
	_, err = p.rdb.Pipelined(ctx, func(pp goredis.Pipeliner) error {
		for i, k := range candidates {
			exists[i] = pp.Exists(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var live []string
	var stale []any
	for i, k := range candidates {
		if exists[i].Val() > 0 {
			live = append(live, k)
		} else {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		// best-effort; a failed prune is retried on the next enumeration
		_ = p.rdb.SRem(ctx, p.indexKey(ns), stale...).Err()
	}
	return live, nil
}

func (p *Redis) indexKey(ns string) string { return p.indexPrefix + ns }

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
