package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Webhook envelopes by stream and outcome
//   - Call-control commands issued against the telephony platform
//   - Active call session counts
//   - Forecast lookup performance and failure modes
//   - HTTP request latency on the webhook routes
type Metrics struct {
	// EnvelopeCounter tracks webhook envelopes by stream and outcome.
	// Labels: stream (received|callback), outcome (handled|unrecognized|parse_error)
	EnvelopeCounter *prometheus.CounterVec

	// CommandCounter counts call-control commands by command and status.
	// Labels: command (answer|place_call|recognize|play|remove_participant|list_participants),
	// status (success|error)
	CommandCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current call sessions.
	ActiveSessions prometheus.Gauge

	// ForecastCounter counts forecast lookups by status.
	// Labels: status (success|no_location|unavailable|upstream_error)
	ForecastCounter *prometheus.CounterVec

	// ForecastDuration measures forecast lookup latency in seconds.
	// Buckets: 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s
	ForecastDuration prometheus.Histogram

	// HTTPRequestDuration measures HTTP request latency on webhook routes.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup; metrics register with
// the default registry and are served by the /metrics endpoint.
func NewMetrics() *Metrics {
	return &Metrics{
		EnvelopeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotline_webhook_envelopes_total",
				Help: "Total number of webhook envelopes processed by stream and outcome",
			},
			[]string{"stream", "outcome"},
		),

		CommandCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotline_call_commands_total",
				Help: "Total number of call-control commands issued by command and status",
			},
			[]string{"command", "status"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotline_active_call_sessions",
				Help: "Current number of tracked call sessions",
			},
		),

		ForecastCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotline_forecast_lookups_total",
				Help: "Total number of forecast lookups by status",
			},
			[]string{"status"},
		),

		ForecastDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotline_forecast_lookup_duration_seconds",
				Help:    "Duration of forecast lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotline_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotline_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// EnvelopeProcessed increments the envelope counter for a stream and outcome.
func (m *Metrics) EnvelopeProcessed(stream, outcome string) {
	m.EnvelopeCounter.WithLabelValues(stream, outcome).Inc()
}

// CommandIssued records the result of a call-control command.
func (m *Metrics) CommandIssued(command, status string) {
	m.CommandCounter.WithLabelValues(command, status).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}

// RecordForecastLookup records metrics for a forecast lookup.
func (m *Metrics) RecordForecastLookup(status string, durationSeconds float64) {
	m.ForecastCounter.WithLabelValues(status).Inc()
	m.ForecastDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
