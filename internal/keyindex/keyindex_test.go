package keyindex

import (
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchByNamespaceAndGlobal(t *testing.T) {
	ix := New(clockwork.NewFakeClock())
	for _, k := range []string{"user:u1:foo", "user:u2:foo", "userStats:u1", "trending", "trendingBooks:x"} {
		ix.Add(k, time.Hour)
	}

	got, err := ix.Match("user:u1:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:u1:foo"}, got)

	got, err = ix.Match("trending*")
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"trending", "trendingBooks:x"}, got)

	got, err = ix.Match("userStats:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"userStats:u1"}, got)
}

func TestExpiryAndSweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ix := New(clock)
	ix.Add("search:a", time.Second)
	ix.Add("search:b", 0)

	assert.False(t, ix.Expired("search:a"))
	clock.Advance(time.Second)
	assert.True(t, ix.Expired("search:a"))
	assert.False(t, ix.Expired("search:b"))
	assert.True(t, ix.Expired("search:unknown"))

	got, err := ix.Match("search:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"search:b"}, got)

	assert.Equal(t, []string{"search:a"}, ix.Sweep())
	assert.Equal(t, 1, ix.Len())
}

func TestRemoveReportsLiveness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ix := New(clock)
	ix.Add("a:1", time.Second)
	ix.Add("a:2", time.Hour)
	clock.Advance(2 * time.Second)

	assert.False(t, ix.Remove("a:1"), "expired key does not count as removed")
	assert.True(t, ix.Remove("a:2"))
	assert.False(t, ix.Remove("a:2"))
	assert.Zero(t, ix.Len())
}

func TestEscapedPatternMatchesLiterally(t *testing.T) {
	ix := New(nil)
	ix.Add("book:a*b:meta", 0)
	ix.Add("book:axb:meta", 0)

	got, err := ix.Match(`book:a\*b:*`)
	require.NoError(t, err)
	assert.Equal(t, []string{"book:a*b:meta"}, got)
}
