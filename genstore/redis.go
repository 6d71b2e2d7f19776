package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "gen:"

// Redis shares generations across replicas and survives restarts.
// An optional TTL keeps idle scopes from accumulating; an expired scope reads as 0.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ GenStore = (*Redis)(nil)

type RedisOptions struct {
	Prefix string        // "" => "gen:"
	TTL    time.Duration // <= 0 => no expiry
}

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	p := opts.Prefix
	if p == "" {
		p = defaultRedisPrefix
	}
	return &Redis{rdb: client, prefix: p, ttl: opts.TTL}
}

func (s *Redis) key(scope string) string { return s.prefix + scope }

func (s *Redis) Snapshot(ctx context.Context, scope string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(scope)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

func (s *Redis) SnapshotMany(ctx context.Context, scopes []string) (map[string]uint64, error) {
	if len(scopes) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(scopes))
	for i, sc := range scopes {
		keys[i] = s.key(sc)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(scopes))
	for i, v := range vals {
		if v == nil {
			out[scopes[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", scopes[i], err)
		}
		out[scopes[i]] = u
	}
	return out, nil
}

// Bump increments the scope; with a TTL, INCR and EXPIRE share one round-trip.
func (s *Redis) Bump(ctx context.Context, scope string) (uint64, error) {
	k := s.key(scope)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires scopes when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

// Close leaves the client open; it is shared with the cache provider.
func (s *Redis) Close(context.Context) error { return nil }
