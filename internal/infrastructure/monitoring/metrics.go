package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deskglyph"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Protocol round trips
	RequestsTotal     *prometheus.CounterVec
	RoundTripDuration *prometheus.HistogramVec
	Timeouts          prometheus.Counter

	// Sessions
	SessionsActive  prometheus.Gauge
	SessionsSpawned prometheus.Counter
	SessionFailures *prometheus.CounterVec
	BreakerTrips    prometheus.Counter

	// Rendering
	RenderPasses       prometheus.Counter
	RenderPassDuration prometheus.Histogram
	CommandsDropped    *prometheus.CounterVec
	Actions            *prometheus.CounterVec

	// Diagnostics HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the diagnostics API.
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	Timeouts       int64   `json:"timeouts"`
	ActiveSessions int64   `json:"active_sessions"`
	AvgRoundTripMs float64 `json:"avg_round_trip_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`

	totalDuration time.Duration
}

// NewMetrics registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry(); nil means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Protocol requests sent to sandboxes",
			},
			[]string{"kind", "outcome"},
		),
		RoundTripDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_trip_duration_seconds",
				Help:      "Time from request write to response read",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
		Timeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Round trips abandoned after the response timeout",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Live sandbox processes",
			},
		),
		SessionsSpawned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_spawned_total",
				Help:      "Sandbox processes started",
			},
		),
		SessionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_failures_total",
				Help:      "Sessions torn down by a fatal error",
			},
			[]string{"reason"},
		),
		BreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_trips_total",
				Help:      "Icon paths refused after repeated session failures",
			},
		),

		RenderPasses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_passes_total",
				Help:      "Full desktop render passes",
			},
		),
		RenderPassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_pass_duration_seconds",
				Help:      "Wall time of a full desktop render pass",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		CommandsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_dropped_total",
				Help:      "Draw commands rejected by host validation",
			},
			[]string{"reason"},
		),
		Actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Actions requested by widget event callbacks",
			},
			[]string{"action"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Diagnostics HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the host started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordRoundTrip records one request/response exchange. outcome is "ok",
// "error" (the sandbox answered Error) or "fatal".
func (m *Metrics) RecordRoundTrip(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	m.RoundTripDuration.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration
	if outcome != "ok" {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// IncTimeouts counts an abandoned round trip.
func (m *Metrics) IncTimeouts() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()

	m.mu.Lock()
	m.snapshot.Timeouts++
	m.mu.Unlock()
}

// SessionStarted counts a spawned sandbox.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsSpawned.Inc()
	m.SessionsActive.Inc()

	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionEnded records a session teardown; a non-empty reason marks it failed.
func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	if reason != "" {
		m.SessionFailures.WithLabelValues(reason).Inc()
	}

	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

func (m *Metrics) IncBreakerTrips() {
	if m == nil {
		return
	}
	m.BreakerTrips.Inc()
}

// RecordRenderPass records a full desktop pass.
func (m *Metrics) RecordRenderPass(duration time.Duration) {
	if m == nil {
		return
	}
	m.RenderPasses.Inc()
	m.RenderPassDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncCommandsDropped(reason string) {
	if m == nil {
		return
	}
	m.CommandsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncActions(action string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action).Inc()
}

// RecordHTTPRequest records a diagnostics request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns current totals for the JSON API.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgRoundTripMs = float64(s.totalDuration.Microseconds()) / 1000 / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
