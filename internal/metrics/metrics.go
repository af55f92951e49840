// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for proxy latency. The upper bound covers the
// default 10s upstream timeout.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration *prometheus.HistogramVec
	UpstreamOutcomes *prometheus.CounterVec

	metricsPath string
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. metricsPath is the route the registry is exposed on; it is
// labelled as itself rather than "other".
func New(metricsPath string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry:    reg,
		metricsPath: metricsPath,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minij_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minij_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minij_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minij_proxy_upstream_fetch_duration_seconds",
			Help:    "Upstream fetch latency in seconds, body read included.",
			Buckets: defaultBuckets,
		}, []string{"outcome"}),

		UpstreamOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minij_proxy_upstream_fetches_total",
			Help: "Total upstream fetches by outcome and upstream status code.",
		}, []string{"outcome", "status_code"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamOutcomes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPaths lists the allowed path label values (bounded cardinality).
var knownPaths = map[string]bool{
	"/":             true,
	"/healthz":      true,
	"/proxy/status": true,
}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Every proxy route is exact-match, so no prefix handling is needed.
func (m *Metrics) NormalizePath(path string) string {
	if knownPaths[path] || (path != "" && path == m.metricsPath) {
		return path
	}
	return "other"
}
