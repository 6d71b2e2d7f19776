package promhooks

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache/health"
	"github.com/unkn0wn-root/shelfcache/ranking"
)

func TestCacheHooks(t *testing.T) {
	m := New(nil)
	boom := errors.New("boom")

	m.SelfHeal("search:q=dune:page=1", "corrupt")
	m.SelfHeal("search:q=dune:page=2", "corrupt")
	m.SelfHeal("userStats:u1", "value_decode")
	m.ProviderSetRejected("rankings:sort=rating:page=1:limit=20")
	m.BackendError("get", "k", boom)
	m.QuotaEvicted("search", 1000, 100)
	m.QuotaEvicted("search", 1000, 100)
	m.QuotaEnforceError("search", boom)
	m.StaleWriteSkipped("userCollection:u1")
	m.GenSnapshotError(2, boom)
	m.GenBumpError("search", boom)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.selfHeal.WithLabelValues("search", "corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selfHeal.WithLabelValues("userStats", "value_decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.setRejected.WithLabelValues("rankings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendErrors.WithLabelValues("get")))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.quotaEvicted.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaErrors.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleSkipped.WithLabelValues("userCollection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.genErrors.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.genErrors.WithLabelValues("bump")))
}

func TestRankingObserver(t *testing.T) {
	m := New(nil)
	m.DescriptorFailed(ranking.Descriptor{Sort: ranking.SortRating, Page: 4}, errors.New("timeout"))
	m.PassCompleted(ranking.PassResult{Total: 10, Succeeded: 9, Failed: 1, Duration: 1500 * time.Millisecond})

	assert.Equal(t, 9.0, testutil.ToFloat64(m.rankingRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rankingRefreshes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rankingFailures.WithLabelValues(ranking.SortRating)))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.rankingLastOK))
	assert.Equal(t, 1, testutil.CollectAndCount(m.rankingPass))
}

func TestConnState(t *testing.T) {
	m := New(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connState.WithLabelValues("connecting")))

	m.ConnStateChanged(health.StateConnecting, health.StateReady)
	m.ConnStateChanged(health.StateReady, health.StateError)
	m.ConnStateChanged(health.StateError, health.StateReconnecting)
	m.ConnStateChanged(health.StateReconnecting, health.StateReady)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connState.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connState.WithLabelValues("connecting")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connTransitions.WithLabelValues("ready")))
	assert.Equal(t, 5, testutil.CollectAndCount(m.connState))
}

func TestRegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BackendError("set", "k", errors.New("x"))

	n, err := testutil.GatherAndCount(reg, "shelfcache_backend_errors_total", "shelfcache_redis_connection_state")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}
