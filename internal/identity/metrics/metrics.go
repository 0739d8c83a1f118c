package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer.
type Metrics struct {
	Verifications   *prometheus.CounterVec
	ProviderLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voteboard_identity_verifications_total",
			Help: "Caller verifications by result (ok or failure reason)",
		}, []string{"result"}),
		ProviderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voteboard_identity_provider_seconds",
			Help:    "Latency of live credential checks against the identity provider",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3},
		}),
	}
}

func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProvider(seconds float64) {
	if m == nil {
		return
	}
	m.ProviderLatency.Observe(seconds)
}
