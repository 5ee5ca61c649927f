package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication outcomes recorded by [Metrics].
const (
	OutcomePublic        = "public"
	OutcomeAuthenticated = "authenticated"
	OutcomeMissing       = "missing_header"
	OutcomeInvalid       = "invalid"
	OutcomeExpired       = "expired"
	OutcomeCancelled     = "cancelled"
)

// Metrics holds the Prometheus collectors of the authentication filter.
// A nil *Metrics records nothing.
type Metrics struct {
	Requests          *prometheus.CounterVec
	ValidationLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academic_auth_requests_total",
				Help: "Requests seen by the authentication filter, by outcome.",
			},
			[]string{"service", "outcome"},
		),
		ValidationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "academic_auth_validation_duration_seconds",
				Help:    "Time spent validating bearer tokens.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
	}
}

// RecordOutcome counts one request with the given outcome.
func (m *Metrics) RecordOutcome(service, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(service, outcome).Inc()
}

// ObserveValidation records the duration of one validation.
func (m *Metrics) ObserveValidation(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.ValidationLatency.WithLabelValues(service).Observe(d.Seconds())
}
