package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the gateway.
type Metrics struct {
	registry      *prometheus.Registry
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	FileOps       *prometheus.CounterVec
	UpstreamFails *prometheus.CounterVec
	Suggestions   prometheus.Counter
	ActiveStreams prometheus.Gauge
}

// NewMetrics constructs a metrics registry with gateway collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_gateway_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copilot_gateway_http_duration_seconds",
		Help:    "HTTP request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	fileOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_gateway_file_operations_total",
		Help: "File operations by type and outcome",
	}, []string{"op", "outcome"})

	upstream := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_gateway_upstream_failures_total",
		Help: "Model host failures by provider",
	}, []string{"provider"})

	suggestions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copilot_gateway_suggested_actions_total",
		Help: "Suggested next actions emitted",
	})

	streams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "copilot_gateway_active_streams",
		Help: "Chat completions currently streaming",
	})

	reg.MustRegister(reqs, durs, fileOps, upstream, suggestions, streams)

	return &Metrics{
		registry:      reg,
		HTTPRequests:  reqs,
		HTTPDuration:  durs,
		FileOps:       fileOps,
		UpstreamFails: upstream,
		Suggestions:   suggestions,
		ActiveStreams: streams,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records one handled HTTP request.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordFileOp records a dispatched file operation and its outcome label.
func (m *Metrics) RecordFileOp(op, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.FileOps.WithLabelValues(op, outcome).Inc()
}

// RecordUpstreamFailure records a model host failure.
func (m *Metrics) RecordUpstreamFailure(provider string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.UpstreamFails.WithLabelValues(provider).Inc()
}

// RecordSuggestions adds emitted suggestion count.
func (m *Metrics) RecordSuggestions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Suggestions.Add(float64(n))
}

// IncActiveStreams increments the streaming gauge.
func (m *Metrics) IncActiveStreams() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// DecActiveStreams decrements the streaming gauge.
func (m *Metrics) DecActiveStreams() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}
