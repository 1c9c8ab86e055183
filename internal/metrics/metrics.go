// Package metrics exposes Prometheus instrumentation for the API server.
// Each Metrics value owns its registry so tests never share state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	suggestionsTotal   prometheus.Counter
	validationFailures *prometheus.CounterVec
	entriesCreated     *prometheus.CounterVec
	syncRuns           *prometheus.CounterVec
	syncImported       prometheus.Counter
	requestDuration    *prometheus.HistogramVec
	activeWebsockets   prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		suggestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glucolog_suggestions_total",
			Help: "Bolus suggestions computed.",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glucolog_validation_failures_total",
			Help: "Rejected suggestion requests by offending field.",
		}, []string{"field"}),
		entriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glucolog_entries_created_total",
			Help: "Journal entries created by type.",
		}, []string{"type"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glucolog_nightscout_sync_runs_total",
			Help: "Nightscout sync attempts by outcome.",
		}, []string{"outcome"}),
		syncImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glucolog_nightscout_entries_imported_total",
			Help: "Glucose entries imported from Nightscout.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glucolog_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		activeWebsockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glucolog_websocket_connections",
			Help: "Currently connected websocket clients.",
		}),
	}

	registry.MustRegister(
		m.suggestionsTotal,
		m.validationFailures,
		m.entriesCreated,
		m.syncRuns,
		m.syncImported,
		m.requestDuration,
		m.activeWebsockets,
	)
	return m
}

func (m *Metrics) RecordSuggestion() {
	m.suggestionsTotal.Inc()
}

func (m *Metrics) RecordValidationFailure(field string) {
	m.validationFailures.WithLabelValues(field).Inc()
}

func (m *Metrics) RecordEntryCreated(entryType string) {
	m.entriesCreated.WithLabelValues(entryType).Inc()
}

func (m *Metrics) RecordSyncRun(outcome string) {
	m.syncRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSyncImported(count int) {
	m.syncImported.Add(float64(count))
}

func (m *Metrics) RecordRequest(method, route, status string, seconds float64) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) WebsocketConnected() {
	m.activeWebsockets.Inc()
}

func (m *Metrics) WebsocketDisconnected() {
	m.activeWebsockets.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
