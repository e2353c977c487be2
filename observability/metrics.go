package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records HTTP traffic served by the farm gateway.
type GatewayMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	authFails *prometheus.CounterVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics

	// Farm writes settle in microseconds; reads of the event index dominate
	// the upper buckets.
	gatewayBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
)

// Gateway returns the process-wide gateway metrics, registering them on first
// use.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epkfarm",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Gateway requests segmented by route and status code.",
			}, []string{"route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "epkfarm",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Gateway handler latency by route.",
				Buckets:   gatewayBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epkfarm",
				Subsystem: "gateway",
				Name:      "throttled_total",
				Help:      "Requests rejected by a rate limit, by limit id.",
			}, []string{"limit"}),
			authFails: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epkfarm",
				Subsystem: "gateway",
				Name:      "auth_failures_total",
				Help:      "Write requests rejected before reaching the farm, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
			gatewayRegistry.authFails,
		)
	})
	return gatewayRegistry
}

// Observe records one served request. Route should be the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *GatewayMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a request denied by the named rate limit.
func (m *GatewayMetrics) RecordThrottle(limitID string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(limitID).Inc()
}

// RecordAuthFailure counts a rejected caller identification.
func (m *GatewayMetrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFails.WithLabelValues(reason).Inc()
}
