package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus instruments for the lifecycle engine and the
// distribution hub. All record methods are nil-safe so tests can pass a nil
// *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ticketsIngested       *prometheus.CounterVec
	eventsPublished       *prometheus.CounterVec
	eventsDelivered       prometheus.Counter
	versionConflicts      prometheus.Counter
	slowConsumerEvictions prometheus.Counter
	sessionsConnected     *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// NewMetrics initializes and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ticketsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketera_tickets_ingested_total",
			Help: "Ingestion attempts by outcome.",
		}, []string{"result"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketera_events_published_total",
			Help: "Domain events published, by type.",
		}, []string{"type"}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketera_events_delivered_total",
			Help: "Events enqueued to session queues.",
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketera_version_conflicts_total",
			Help: "Mutations rejected by optimistic concurrency.",
		}),
		slowConsumerEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketera_slow_consumer_evictions_total",
			Help: "Sessions dropped because their queue backed up.",
		}),
		sessionsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ticketera_sessions_connected",
			Help: "Currently connected stream sessions, by role.",
		}, []string{"role"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketera_http_requests_total",
			Help: "HTTP requests, by path, method and status.",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketera_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketera_http_errors_total",
			Help: "HTTP error responses, by path, method and error code.",
		}, []string{"path", "method", "code"}),
	}
	registry.MustRegister(
		m.ticketsIngested,
		m.eventsPublished,
		m.eventsDelivered,
		m.versionConflicts,
		m.slowConsumerEvictions,
		m.sessionsConnected,
		m.httpRequests,
		m.httpDuration,
		m.httpErrors,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngest counts one ingestion attempt (created, duplicate, rejected, failed).
func (m *Metrics) RecordIngest(result string) {
	if m == nil {
		return
	}
	m.ticketsIngested.WithLabelValues(result).Inc()
}

// RecordEventPublished counts one published domain event.
func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDelivered counts one event enqueued to a session.
func (m *Metrics) RecordEventDelivered() {
	if m == nil {
		return
	}
	m.eventsDelivered.Inc()
}

// RecordVersionConflict counts one optimistic-concurrency rejection.
func (m *Metrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// RecordSlowConsumerEviction counts one slow-consumer disconnect.
func (m *Metrics) RecordSlowConsumerEviction() {
	if m == nil {
		return
	}
	m.slowConsumerEvictions.Inc()
}

// SessionConnected tracks a new live session.
func (m *Metrics) SessionConnected(role string) {
	if m == nil {
		return
	}
	m.sessionsConnected.WithLabelValues(role).Inc()
}

// SessionDisconnected tracks a closed live session.
func (m *Metrics) SessionDisconnected(role string) {
	if m == nil {
		return
	}
	m.sessionsConnected.WithLabelValues(role).Dec()
}

// RecordRequest counts one finished HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts one error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}
