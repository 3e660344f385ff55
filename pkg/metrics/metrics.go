package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request-level metadata for the API.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewHTTPMetrics registers the HTTP metrics on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Count of HTTP requests by status class.",
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration, requests)
	return &HTTPMetrics{duration: duration, requests: requests}
}

// Observe records one completed request.
func (h *HTTPMetrics) Observe(method, route, status string, took time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(normalizeLabel(method), normalizeLabel(route)).Observe(took.Seconds())
	h.requests.WithLabelValues(normalizeLabel(method), normalizeLabel(route), status).Inc()
}

// LifecycleMetrics counts settlement and request-transition outcomes.
type LifecycleMetrics struct {
	settlements *prometheus.CounterVec
	transitions *prometheus.CounterVec
	refunds     *prometheus.CounterVec
}

// NewLifecycleMetrics registers the booking-lifecycle metrics.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_settlements_total",
		Help: "Checkout settlements by outcome (created, replayed, failed).",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_transitions_total",
		Help: "Service request transitions by action and outcome.",
	}, []string{"action", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_refunds_total",
		Help: "Gateway refund attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(settlements, transitions, refunds)
	return &LifecycleMetrics{
		settlements: settlements,
		transitions: transitions,
		refunds:     refunds,
	}
}

// IncSettlement records one settle call outcome.
func (m *LifecycleMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition records one state-machine transition outcome.
func (m *LifecycleMetrics) IncTransition(action, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

// IncRefund records one refund attempt outcome.
func (m *LifecycleMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	v := strings.TrimSpace(strings.ToLower(value))
	if v == "" {
		return "unknown"
	}
	return v
}
