package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Checks         *prometheus.CounterVec
	BackendErrors  prometheus.Counter
	FallbackChecks prometheus.Counter
	BreakerOpen    prometheus.Gauge
	CountersSwept  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voteboard_ratelimit_checks_total",
			Help: "Rate limit decisions by scope and outcome",
		}, []string{"scope", "outcome"}),
		BackendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_ratelimit_backend_errors_total",
			Help: "Errors returned by the primary bucket store",
		}),
		FallbackChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_ratelimit_fallback_checks_total",
			Help: "Checks served by the in-memory fallback store",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voteboard_ratelimit_breaker_open",
			Help: "1 while the bucket store circuit breaker is open",
		}),
		CountersSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteboard_ratelimit_counters_swept_total",
			Help: "Expired counters evicted by the sweeper",
		}),
	}
}

func (m *Metrics) RecordCheck(scope string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Checks.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) IncrementBackendErrors() {
	if m == nil {
		return
	}
	m.BackendErrors.Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.FallbackChecks.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CountersSwept.Add(float64(n))
}
