package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache"
	rp "github.com/unkn0wn-root/shelfcache/provider/redis"
)

type chanObserver struct {
	passes chan PassResult
	mu     sync.Mutex
	failed []Descriptor
}

func newChanObserver() *chanObserver { return &chanObserver{passes: make(chan PassResult, 16)} }

func (o *chanObserver) PassCompleted(r PassResult) { o.passes <- r }
func (o *chanObserver) DescriptorFailed(d Descriptor, _ error) {
	o.mu.Lock()
	o.failed = append(o.failed, d)
	o.mu.Unlock()
}

func (o *chanObserver) waitPass(t *testing.T) PassResult {
	t.Helper()
	select {
	case r := <-o.passes:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("refresh pass did not complete")
		return PassResult{}
	}
}

func newTestCache(t *testing.T) (*shelfcache.Cache[[]BookSummary], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := rp.New(rp.Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	store, err := shelfcache.New(shelfcache.Options{Provider: p})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	cc, err := shelfcache.NewCache(shelfcache.CacheOptions[[]BookSummary]{Store: store})
	require.NoError(t, err)
	return cc, mr
}

func tenDescriptors() []Descriptor {
	var out []Descriptor
	for i := 1; i <= 10; i++ {
		out = append(out, Descriptor{Sort: SortRating, Page: i, Limit: 10})
	}
	return out
}

func bookFor(q Query, tag string) []BookSummary {
	return []BookSummary{{ID: fmt.Sprintf("off-%d", q.Offset), Title: tag}}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rankings:sort=rating:genre=fantasy:page=1:limit=20",
		Key(Descriptor{Sort: SortRating, Genre: "fantasy", Page: 1, Limit: 20}))
	assert.Equal(t, "rankings:sort=popular:year=2023:page=2:limit=50",
		Key(Descriptor{Sort: SortPopular, Year: 2023, Page: 2, Limit: 50}))
	assert.Equal(t, "rankings:sort=recent:page=1:limit=100",
		Key(Descriptor{Sort: SortRecent, Page: 0, Limit: 500}), "normalized before keying")
	assert.Equal(t, Key(Descriptor{Sort: SortRating}), Key(Descriptor{Sort: SortRating, Page: 1, Limit: 20}))
	assert.Equal(t, "rankings:sort=rating:decade=1990:page=1:limit=20",
		Key(Descriptor{Sort: SortRating, Decade: 1997}), "decade floored")
}

func TestKeyEscapesGenre(t *testing.T) {
	k := Key(Descriptor{Sort: SortRating, Genre: "sci:fi*"})
	assert.Equal(t, "rankings:sort=rating:genre=sci%3Afi%2A:page=1:limit=20", k)
	assert.Len(t, strings.Split(k, ":"), 5, "genre adds exactly one segment")
	assert.NotEqual(t, k, Key(Descriptor{Sort: SortRating, Genre: "sci%3Afi*"}))
	assert.Equal(t, "sci:fi*", Descriptor{Sort: SortRating, Genre: "sci:fi*"}.Query().Genre, "query keeps the raw genre")
}

func TestQueryNormalization(t *testing.T) {
	cases := []struct {
		d    Descriptor
		want Query
	}{
		{Descriptor{Sort: SortRating, Page: 3, Limit: 20}, Query{Sort: SortRating, Offset: 40, Limit: 20}},
		{Descriptor{Sort: SortRating, Page: -1, Limit: 1000}, Query{Sort: SortRating, Offset: 0, Limit: 100}},
		{Descriptor{Sort: SortRating, Page: 2, Limit: -5}, Query{Sort: SortRating, Offset: 1, Limit: 1}},
		{Descriptor{Sort: SortTitle, Genre: "romance", Year: 1999}, Query{Sort: SortTitle, Genre: "romance", Year: 1999, Limit: 20}},
		{Descriptor{Sort: SortRating, Decade: 1985}, Query{Sort: SortRating, YearFrom: 1980, YearTo: 1989, Limit: 20}},
		{Descriptor{Sort: SortRating, Decade: -5}, Query{Sort: SortRating, Limit: 20}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.d.Query(), tc.d.String())
	}
}

func TestDefaultDescriptorsAreDistinct(t *testing.T) {
	ds := defaultDescriptorsAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	// 2 sorts x 5 genres x (all + 3 decades) + newest arrivals
	require.Len(t, ds, 41)
	seen := map[string]bool{}
	for _, d := range ds {
		k := Key(d)
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.True(t, seen["rankings:sort=rating:genre=fantasy:decade=2020:page=1:limit=20"])
	assert.True(t, seen["rankings:sort=popular:genre=mystery:decade=2000:page=1:limit=20"])
	assert.True(t, seen["rankings:sort=popular:page=1:limit=20"])
	assert.False(t, seen["rankings:sort=rating:decade=1990:page=1:limit=20"], "only three decades")
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNilCache)

	cc, _ := newTestCache(t)
	_, err = New(Options{Cache: cc})
	assert.ErrorIs(t, err, ErrNilSource)
}

// TestRefreshAllContinuesPastFailure: descriptor #4 fails, the other nine are
// written and #4 keeps its previous value.
func TestRefreshAllContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t)
	ds := tenDescriptors()
	failing := ds[3]

	stale := []BookSummary{{ID: "old", Title: "stale"}}
	require.NoError(t, cc.Set(ctx, Key(failing), stale, time.Hour))

	obs := newChanObserver()
	s, err := New(Options{
		Cache:       cc,
		Descriptors: ds,
		Observer:    obs,
		Source: SourceFunc(func(_ context.Context, q Query) ([]BookSummary, error) {
			if q == failing.Query() {
				return nil, errors.New("statement timeout")
			}
			return bookFor(q, "fresh"), nil
		}),
	})
	require.NoError(t, err)

	res := s.RefreshAll(ctx)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 9, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []Descriptor{failing}, obs.failed)

	for i, d := range ds {
		got, ok := cc.Get(ctx, Key(d))
		require.True(t, ok, "descriptor %d missing", i+1)
		if i == 3 {
			assert.Equal(t, stale, got)
		} else {
			assert.Equal(t, "fresh", got[0].Title)
		}
	}

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{RankingKeys: 10, Running: false}, st)
}

func TestForceRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cc, mr := newTestCache(t)

	var calls atomic.Int32
	s, err := New(Options{
		Cache:       cc,
		Descriptors: []Descriptor{},
		Source: SourceFunc(func(_ context.Context, q Query) ([]BookSummary, error) {
			return bookFor(q, fmt.Sprintf("call-%d", calls.Add(1))), nil
		}),
	})
	require.NoError(t, err)

	d := Descriptor{Sort: SortPopular, Genre: "mystery", Page: 1, Limit: 20}
	require.NoError(t, s.ForceRefresh(ctx, d))
	require.NoError(t, s.ForceRefresh(ctx, d))

	assert.Equal(t, []string{Key(d)}, mr.Keys())
	got, ok := cc.Get(ctx, Key(d))
	require.True(t, ok)
	assert.Equal(t, "call-2", got[0].Title)
}

func TestForceRefreshReturnsQueryError(t *testing.T) {
	cc, mr := newTestCache(t)
	boom := errors.New("db down")
	s, err := New(Options{
		Cache:       cc,
		Descriptors: []Descriptor{},
		Source:      SourceFunc(func(context.Context, Query) ([]BookSummary, error) { return nil, boom }),
	})
	require.NoError(t, err)

	err = s.ForceRefresh(context.Background(), Descriptor{Sort: SortRating})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestQueryTimeout(t *testing.T) {
	cc, _ := newTestCache(t)
	s, err := New(Options{
		Cache:        cc,
		Descriptors:  []Descriptor{{Sort: SortRating}},
		QueryTimeout: 10 * time.Millisecond,
		Source: SourceFunc(func(ctx context.Context, _ Query) ([]BookSummary, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	require.NoError(t, err)

	res := s.RefreshAll(context.Background())
	assert.Equal(t, 1, res.Failed)
}

func TestStartTwiceKeepsOneLoop(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t)
	clock := clockwork.NewFakeClock()
	obs := newChanObserver()

	var queries atomic.Int32
	s, err := New(Options{
		Cache:       cc,
		Descriptors: []Descriptor{{Sort: SortRating}, {Sort: SortPopular}},
		Interval:    time.Hour,
		Clock:       clock,
		Observer:    obs,
		Source: SourceFunc(func(_ context.Context, q Query) ([]BookSummary, error) {
			queries.Add(1)
			return bookFor(q, "x"), nil
		}),
	})
	require.NoError(t, err)

	assert.True(t, s.Start(ctx))
	assert.False(t, s.Start(ctx), "second Start is a no-op")
	assert.True(t, s.Running())

	obs.waitPass(t) // immediate pass
	clock.BlockUntil(1)
	assert.Equal(t, int32(2), queries.Load())

	clock.Advance(time.Hour)
	obs.waitPass(t)
	assert.Equal(t, int32(4), queries.Load(), "one ticker, one pass per interval")

	select {
	case r := <-obs.passes:
		t.Fatalf("unexpected extra pass %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // no-op

	assert.True(t, s.Start(ctx), "restart after stop")
	obs.waitPass(t)
	s.Stop()
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t)
	obs := newChanObserver()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s, err := New(Options{
		Cache:       cc,
		Descriptors: tenDescriptors(),
		Clock:       clockwork.NewFakeClock(),
		Observer:    obs,
		Source: SourceFunc(func(_ context.Context, q Query) ([]BookSummary, error) {
			once.Do(func() {
				close(entered)
				<-release
			})
			return bookFor(q, "x"), nil
		}),
	})
	require.NoError(t, err)

	s.Start(ctx)
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	res := obs.waitPass(t)
	assert.Equal(t, 10, res.Succeeded, "in-flight pass runs to completion")
	assert.False(t, s.Running())
}

func TestContextCancelEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cc, _ := newTestCache(t)
	clock := clockwork.NewFakeClock()
	obs := newChanObserver()
	s, err := New(Options{
		Cache:       cc,
		Descriptors: []Descriptor{{Sort: SortRating}},
		Clock:       clock,
		Observer:    obs,
		Source:      SourceFunc(func(_ context.Context, q Query) ([]BookSummary, error) { return bookFor(q, "x"), nil }),
	})
	require.NoError(t, err)

	s.Start(ctx)
	obs.waitPass(t)
	clock.BlockUntil(1)
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 5*time.Millisecond)
	s.Stop() // no-op after the loop ended on its own
}
