// Package metrics exposes Prometheus collectors for proxied requests and
// OAuth token fetches.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnknownTarget labels requests whose target could not be resolved.
const UnknownTarget = "unknown"

// DurationBuckets are the histogram boundaries, in seconds, for proxied requests.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds the proxy's collectors on a private registry, so tests and
// multiple servers in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tokenFetch  *prometheus.CounterVec
	targetCount prometheus.GaugeFunc
}

// New registers the collectors. targets, if non-nil, reports the number of
// registered targets at scrape time.
func New(targets func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portico",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by target and response status.",
		}, []string{"target", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portico",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Time from receiving a proxied request to the end of its response body.",
			Buckets:   DurationBuckets,
		}, []string{"target"}),
		tokenFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portico",
			Name:      "token_fetches_total",
			Help:      "OAuth client-credentials token requests by target and outcome.",
		}, []string{"target", "result"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.tokenFetch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if targets != nil {
		m.targetCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "portico",
			Name:      "targets",
			Help:      "Number of registered targets.",
		}, func() float64 { return float64(targets()) })
		m.registry.MustRegister(m.targetCount)
	}
	return m
}

// ObserveRequest records one proxied request.
func (m *Metrics) ObserveRequest(target string, code int, d time.Duration) {
	if target == "" {
		target = UnknownTarget
	}
	m.requests.WithLabelValues(target, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(target).Observe(d.Seconds())
}

// ObserveTokenFetch records the outcome of one token endpoint call.
func (m *Metrics) ObserveTokenFetch(target string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.tokenFetch.WithLabelValues(target, result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
