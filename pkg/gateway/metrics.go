package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// routeUnmatched labels requests no rule matched.
const routeUnmatched = "none"

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	UpstreamErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academic_gateway_requests_total",
				Help: "Requests handled by the gateway, by route and status code.",
			},
			[]string{"route", "code"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "academic_gateway_request_duration_seconds",
				Help:    "End-to-end gateway latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academic_gateway_upstream_errors_total",
				Help: "Requests that failed to reach their target service.",
			},
			[]string{"service"},
		),
	}
}

func (m *Metrics) observe(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.Duration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) upstreamError(service string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(service).Inc()
}
