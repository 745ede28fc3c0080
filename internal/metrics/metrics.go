// Package metrics exposes Prometheus instrumentation for upstream calls and
// lookup outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeHTTPStatus   = "http_status"
)

// Lookup outcomes.
const (
	LookupDone             = "done"
	LookupLocationNotFound = "location_not_found"
	LookupNoStopsFound     = "no_stops_found"
	LookupInputError       = "input_error"
	LookupOutputError      = "output_error"
	LookupCancelled        = "cancelled"
)

var (
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stopfinder",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream GET requests by service and outcome",
	}, []string{"service", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stopfinder",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Upstream GET latency in seconds",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service"})

	Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stopfinder",
		Subsystem: "lookup",
		Name:      "runs_total",
		Help:      "Total postcode lookups by final outcome",
	}, []string{"outcome"})
)

// CountUpstream records one upstream call.
func CountUpstream(service, outcome string) {
	UpstreamRequests.WithLabelValues(service, outcome).Inc()
}

// ObserveUpstreamDuration records the latency of one upstream call.
func ObserveUpstreamDuration(service string, d time.Duration) {
	UpstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// CountLookup records the final outcome of one lookup.
func CountLookup(outcome string) {
	Lookups.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
