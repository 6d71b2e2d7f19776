// Package promhooks exports cache, ranking and connection events as
// Prometheus metrics. A single *Metrics serves as shelfcache.Hooks,
// ranking.Observer and health.Config.OnStateChange.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/health"
	"github.com/unkn0wn-root/shelfcache/internal/util"
	"github.com/unkn0wn-root/shelfcache/ranking"
)

const metricNamespace = "shelfcache"

var allStates = []health.State{
	health.StateConnecting,
	health.StateReady,
	health.StateError,
	health.StateReconnecting,
	health.StateEnded,
}

type Metrics struct {
	selfHeal      *prometheus.CounterVec
	setRejected   *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	quotaEvicted  *prometheus.CounterVec
	quotaErrors   *prometheus.CounterVec
	staleSkipped  *prometheus.CounterVec
	genErrors     *prometheus.CounterVec

	rankingRefreshes *prometheus.CounterVec
	rankingFailures  *prometheus.CounterVec
	rankingPass      prometheus.Histogram
	rankingLastOK    prometheus.Gauge

	connState       *prometheus.GaugeVec
	connTransitions *prometheus.CounterVec
}

var (
	_ shelfcache.Hooks = (*Metrics)(nil)
	_ ranking.Observer = (*Metrics)(nil)
)

// New creates and registers the collectors on reg. A nil reg leaves them
// unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: metricNamespace, Name: name, Help: help}, labels)
	}
	m := &Metrics{
		selfHeal:      counter("self_heal_total", "Entries deleted on read because they could not be used.", "namespace", "reason"),
		setRejected:   counter("provider_set_rejected_total", "Writes the provider declined to admit.", "namespace"),
		backendErrors: counter("backend_errors_total", "Failed provider calls.", "op"),
		quotaEvicted:  counter("quota_evicted_keys_total", "Keys removed by namespace quota enforcement.", "namespace"),
		quotaErrors:   counter("quota_enforce_errors_total", "Quota enforcement failures; the write proceeded.", "namespace"),
		staleSkipped:  counter("stale_writes_skipped_total", "Fills not written because the namespace was invalidated meanwhile.", "namespace"),
		genErrors:     counter("generation_errors_total", "Generation store failures.", "op"),

		rankingRefreshes: counter("ranking_refreshes_total", "Ranking descriptor refreshes by result.", "result"),
		rankingFailures:  counter("ranking_refresh_failures_total", "Failed ranking refreshes by sort order.", "sort"),
		rankingPass: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "ranking_pass_duration_seconds",
			Help:      "Duration of a full ranking precompute pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rankingLastOK: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "ranking_last_pass_succeeded",
			Help:      "Descriptors refreshed in the most recent pass.",
		}),

		connState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "redis_connection_state",
			Help:      "1 for the current redis connection state, 0 otherwise.",
		}, []string{"state"}),
		connTransitions: counter("redis_state_transitions_total", "Redis connection state transitions by target state.", "state"),
	}
	m.setState(health.StateConnecting)
	return m
}

func ns(key string) string { return util.Namespace(key) }

func (m *Metrics) SelfHeal(key, reason string) { m.selfHeal.WithLabelValues(ns(key), reason).Inc() }

func (m *Metrics) ProviderSetRejected(key string) { m.setRejected.WithLabelValues(ns(key)).Inc() }

func (m *Metrics) BackendError(op, _ string, _ error) { m.backendErrors.WithLabelValues(op).Inc() }

func (m *Metrics) QuotaEvicted(namespace string, _, evicted int) {
	m.quotaEvicted.WithLabelValues(namespace).Add(float64(evicted))
}

func (m *Metrics) QuotaEnforceError(namespace string, _ error) {
	m.quotaErrors.WithLabelValues(namespace).Inc()
}

func (m *Metrics) StaleWriteSkipped(key string) { m.staleSkipped.WithLabelValues(ns(key)).Inc() }

func (m *Metrics) GenSnapshotError(_ int, _ error) { m.genErrors.WithLabelValues("snapshot").Inc() }

func (m *Metrics) GenBumpError(_ string, _ error) { m.genErrors.WithLabelValues("bump").Inc() }

func (m *Metrics) PassCompleted(r ranking.PassResult) {
	m.rankingRefreshes.WithLabelValues("ok").Add(float64(r.Succeeded))
	m.rankingRefreshes.WithLabelValues("failed").Add(float64(r.Failed))
	m.rankingPass.Observe(r.Duration.Seconds())
	m.rankingLastOK.Set(float64(r.Succeeded))
}

func (m *Metrics) DescriptorFailed(d ranking.Descriptor, _ error) {
	m.rankingFailures.WithLabelValues(d.Sort).Inc()
}

// ConnStateChanged matches health.Config.OnStateChange.
func (m *Metrics) ConnStateChanged(_, to health.State) {
	m.connTransitions.WithLabelValues(to.String()).Inc()
	m.setState(to)
}

func (m *Metrics) setState(cur health.State) {
	for _, s := range allStates {
		v := 0.0
		if s == cur {
			v = 1
		}
		m.connState.WithLabelValues(s.String()).Set(v)
	}
}
