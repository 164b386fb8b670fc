// Package metrics holds the Prometheus instruments for the service.
//
// Instruments are grouped on a Metrics value so tests can register them on
// an isolated registry. Default is registered on the global registry by Init
// and is what /metrics serves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dex_sylvr"

// Metrics is the set of instruments the service records.
type Metrics struct {
	// Labels: route, status
	HTTPRequestsTotal *prometheus.CounterVec
	// Labels: route
	HTTPDurationSeconds *prometheus.HistogramVec

	// Labels: status (ok, error, empty, unsupported, queue_full)
	TranscriptionsTotal *prometheus.CounterVec
	// Labels: source (api, cache)
	SynthesesTotal *prometheus.CounterVec

	// Labels: agent, status
	AgentRunsTotal *prometheus.CounterVec
	// Labels: agent
	AgentDurationSeconds *prometheus.HistogramVec
	// Labels: operation, status
	QueriesTotal *prometheus.CounterVec

	ActiveChats prometheus.Gauge
}

// Default is nil until Init is called; the Observe helpers are no-ops on nil.
var Default *Metrics

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route"}),
		TranscriptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "speech",
			Name:      "transcriptions_total",
			Help:      "Transcription attempts by outcome.",
		}, []string{"status"}),
		SynthesesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "speech",
			Name:      "syntheses_total",
			Help:      "Speech syntheses by source.",
		}, []string{"source"}),
		AgentRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Pipeline agent runs by agent and outcome.",
		}, []string{"agent", "status"}),
		AgentDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Pipeline agent latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mongo",
			Name:      "queries_total",
			Help:      "Generated MongoDB queries by operation and outcome.",
		}, []string{"operation", "status"}),
		ActiveChats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "active_connections",
			Help:      "Open chat websocket connections.",
		}),
	}
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPDurationSeconds,
		m.TranscriptionsTotal,
		m.SynthesesTotal,
		m.AgentRunsTotal,
		m.AgentDurationSeconds,
		m.QueriesTotal,
		m.ActiveChats,
	)
	return m
}

// Init registers Default on the global registry. Safe to call more than once.
func Init() *Metrics {
	if Default == nil {
		Default = New(prometheus.DefaultRegisterer)
	}
	return Default
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveHTTP(route string, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	m.HTTPDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveTranscription(outcome string) {
	if m == nil {
		return
	}
	m.TranscriptionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSynthesis(source string) {
	if m == nil {
		return
	}
	m.SynthesesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveAgent(agent string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AgentRunsTotal.WithLabelValues(agent, status(err)).Inc()
	m.AgentDurationSeconds.WithLabelValues(agent).Observe(d.Seconds())
}

func (m *Metrics) ObserveQuery(operation string, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(operation, status(err)).Inc()
}

func (m *Metrics) ChatOpened() {
	if m == nil {
		return
	}
	m.ActiveChats.Inc()
}

func (m *Metrics) ChatClosed() {
	if m == nil {
		return
	}
	m.ActiveChats.Dec()
}
