package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	StoreRetries     prometheus.Counter
	CacheLookups     *prometheus.CounterVec
	DiscardedFills   prometheus.Counter
	CacheErrors      prometheus.Counter
	RecomputeLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voteboard_vote_submissions_total",
			Help: "Committed vote toggles by outcome",
		}, []string{"outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voteboard_vote_rejections_total",
			Help: "Rejected vote submissions by error kind",
		}, []string{"kind"}),
		StoreRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_vote_store_retries_total",
			Help: "Toggle transactions retried after a conflict",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voteboard_board_cache_lookups_total",
			Help: "Board cache lookups by result",
		}, []string{"result"}),
		DiscardedFills: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_board_cache_discarded_fills_total",
			Help: "Recomputed boards not cached because a write invalidated them",
		}),
		CacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_board_cache_errors_total",
			Help: "Board cache backend errors",
		}),
		RecomputeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voteboard_board_recompute_seconds",
			Help:    "Time to rebuild the board from the vote store",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementStoreRetries() {
	if m == nil {
		return
	}
	m.StoreRetries.Inc()
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementDiscardedFills() {
	if m == nil {
		return
	}
	m.DiscardedFills.Inc()
}

func (m *Metrics) IncrementCacheErrors() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

func (m *Metrics) ObserveRecompute(seconds float64) {
	if m == nil {
		return
	}
	m.RecomputeLatency.Observe(seconds)
}
