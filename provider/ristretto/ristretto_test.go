package ristretto

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64, SweepInterval: -1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSetGetDel(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	ok, err := p.Set(ctx, "bookData:b1", []byte("payload"), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	b, ok, err := p.Get(ctx, "bookData:b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), b)

	n, err := p.Del(ctx, "bookData:b1", "bookData:missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err = p.Get(ctx, "bookData:b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysUsesIndex(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	for _, k := range []string{"rankings:a", "rankings:b", "search:x"} {
		ok, err := p.Set(ctx, k, []byte("v"), time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, err := p.Keys(ctx, "rankings:*")
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"rankings:a", "rankings:b"}, got)

	got, err = p.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
