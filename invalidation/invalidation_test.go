package invalidation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/provider"
	bp "github.com/unkn0wn-root/shelfcache/provider/bigcache"
	rp "github.com/unkn0wn-root/shelfcache/provider/redis"
	rr "github.com/unkn0wn-root/shelfcache/provider/ristretto"
)

func newRedisStore(t *testing.T) (shelfcache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := rp.New(rp.Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	s, err := shelfcache.New(shelfcache.Options{Provider: p})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func seed(t *testing.T, s shelfcache.Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, s.Set(context.Background(), k, []byte("v"), time.Hour))
	}
}

func TestInvalidateBookDropsBookRankingsAndSearch(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	seed(t, s, "book:b1:meta", "bookData:b1", "rankings:sort=rating", "search:local:x", "user:u1:foo")

	n, err := New(s, Options{}).InvalidateBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"user:u1:foo"}, mr.Keys())
}

func TestInvalidateUserOnlyTouchesThatUser(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	seed(t, s,
		"user:u1:shelf", "user:u1:lists:2", "userStats:u1", "userCollection:u1",
		"userProfile:u1", "recommendations:u1", "userActivity:u1:p1",
		"user:u10:shelf", "userStats:u10", "userProfile:u2", "bookData:u1",
	)

	n, err := New(s, Options{}).InvalidateUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	left := mr.Keys()
	sort.Strings(left)
	assert.Equal(t, []string{"bookData:u1", "user:u10:shelf", "userProfile:u2", "userStats:u10"}, left)
}

func TestInvalidateGlobal(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	seed(t, s, "trendingBooks:week", "trending:all", "rankings:x", "search:y",
		"activity:recent:10", "activity:user:u1", "bookData:b1")

	n, err := New(s, Options{}).InvalidateGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	left := mr.Keys()
	sort.Strings(left)
	assert.Equal(t, []string{"activity:user:u1", "bookData:b1"}, left)
}

func TestIDCannotWidenPattern(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	seed(t, s, "userStats:u1", "userStats:u2")

	_, err := New(s, Options{}).InvalidateUser(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 2)
}

func newStore(t *testing.T, p provider.Provider) shelfcache.Store {
	t.Helper()
	s, err := shelfcache.New(shelfcache.Options{Provider: p})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// Every backend must select exactly the keys Redis SCAN would.
func TestBraceIDsStayLiteralOnEveryProvider(t *testing.T) {
	backends := map[string]func(t *testing.T) provider.Provider{
		"redis-scan": func(t *testing.T) provider.Provider {
			mr := miniredis.RunT(t)
			p, err := rp.New(rp.Config{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), CloseClient: true})
			require.NoError(t, err)
			return p
		},
		"redis-index": func(t *testing.T) provider.Provider {
			mr := miniredis.RunT(t)
			p, err := rp.New(rp.Config{
				Client:         goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
				CloseClient:    true,
				NamespaceIndex: true,
			})
			require.NoError(t, err)
			return p
		},
		"ristretto": func(t *testing.T) provider.Provider {
			p, err := rr.New(rr.Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64, SweepInterval: -1})
			require.NoError(t, err)
			return p
		},
		"bigcache": func(t *testing.T) provider.Provider {
			p, err := bp.New(bp.Config{LifeWindow: 2 * time.Hour, MaxEntriesInWindow: 1000})
			require.NoError(t, err)
			return p
		},
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, mk(t))
			seed(t, s, "book:a{b,c}:meta", "bookData:a{b,c}", "book:ab:meta", "book:ac:meta", "bookData:ab")

			n, err := New(s, Options{}).InvalidateBook(ctx, "a{b,c}")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			for _, k := range []string{"book:a{b,c}:meta", "bookData:a{b,c}"} {
				_, ok, err := s.Get(ctx, k)
				require.NoError(t, err)
				assert.False(t, ok, "%s should be invalidated", k)
			}
			for _, k := range []string{"book:ab:meta", "book:ac:meta", "bookData:ab"} {
				_, ok, err := s.Get(ctx, k)
				require.NoError(t, err)
				assert.True(t, ok, "%s belongs to another book", k)
			}
		})
	}
}

func TestPatterns(t *testing.T) {
	c := New(nil, Options{})

	got, err := c.Patterns(ScopeUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user:u1:*", "userStats:u1", "userCollection:u1",
		"userProfile:u1", "recommendations:u1", "userActivity:u1:*",
	}, got)

	got, err = c.Patterns(ScopeUser, "a*b")
	require.NoError(t, err)
	assert.Equal(t, `userStats:a\*b`, got[1])

	got, err = c.Patterns(ScopeBook, "a{b,c}")
	require.NoError(t, err)
	assert.Equal(t, `book:a\{b\,c\}:*`, got[0])

	_, err = c.Patterns(ScopeBook, "")
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = c.Patterns(Scope("shelf"), "x")
	assert.ErrorIs(t, err, ErrUnknownScope)

	got, err = c.Patterns(ScopeGlobal, "")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

type fakeDeleter struct {
	calls []string
	fail  map[string]error
	count map[string]int
}

func (f *fakeDeleter) DeletePattern(_ context.Context, p string) (int, error) {
	f.calls = append(f.calls, p)
	if err := f.fail[p]; err != nil {
		return 0, err
	}
	return f.count[p], nil
}

func TestPatternFailuresAreIndependent(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection reset")
	d := &fakeDeleter{
		fail:  map[string]error{"rankings:*": down},
		count: map[string]int{"book:b1:*": 3, "bookData:b1": 1, "search:*": 40},
	}

	n, err := New(d, Options{}).InvalidateBook(ctx, "b1")
	assert.Equal(t, 44, n, "count sums the patterns that succeeded")
	assert.Equal(t, []string{"book:b1:*", "bookData:b1", "rankings:*", "search:*"}, d.calls)

	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "rankings:*", pe.Pattern)
}

func TestCustomPatternSet(t *testing.T) {
	d := &fakeDeleter{count: map[string]int{"shelf:s1": 1}}
	c := New(d, Options{Patterns: PatternSet{"shelf": {"shelf:{id}"}}})

	n, err := c.Invalidate(context.Background(), "shelf", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
