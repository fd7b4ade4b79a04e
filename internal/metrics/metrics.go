// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// hopBuckets covers redirect chains up to the largest sensible budget.
var hopBuckets = []float64{0, 1, 2, 3, 5, 10, 20, 50}

// Redirect outcome label values.
const (
	OutcomeFinal           = "final"
	OutcomeBudgetExhausted = "budget_exhausted"
	OutcomeError           = "error"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RedirectHops        *prometheus.CounterVec
	RedirectStripped    prometheus.Counter
	RedirectOutcomes    *prometheus.CounterVec
	RedirectChainLength prometheus.Histogram
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirect_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redirect_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirect_proxy_upstream_request_duration_seconds",
			Help:    "Latency of a single upstream hop in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		RedirectHops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_redirect_hops_total",
			Help: "Redirects followed, by the status code that triggered them.",
		}, []string{"status_code"}),

		RedirectStripped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirect_proxy_redirect_credentials_stripped_total",
			Help: "Cross-origin redirect hops that removed credential headers.",
		}),

		RedirectOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_redirect_exchanges_total",
			Help: "Logical exchanges by how the redirect loop ended.",
		}, []string{"outcome"}),

		RedirectChainLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redirect_proxy_redirect_chain_length",
			Help:    "Number of redirects followed per logical exchange.",
			Buckets: hopBuckets,
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RedirectHops,
		m.RedirectStripped,
		m.RedirectOutcomes,
		m.RedirectChainLength,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "CONNECT": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the proxy's own routes. Everything else is forwarded,
// including paths under /metrics; the scrape path itself is configurable and
// never reaches the metrics middleware.
var knownPrefixes = []string{"/healthz", "/proxy/status"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "upstream"
}
