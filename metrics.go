package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several Apps can coexist in one process.
// A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	inFlight      prometheus.Gauge
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	authEvents    *prometheus.CounterVec
	auditDropped  prometheus.Counter
	sessionsSwept prometheus.Counter
}

var _ auth.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carego_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carego_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carego_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carego_auth_events_total",
			Help: "Authentication events by kind and outcome code.",
		}, []string{"event", "outcome"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carego_audit_dropped_total",
			Help: "Audit entries dropped because the queue was full.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carego_sessions_swept_total",
			Help: "Expired sessions invalidated by the sweeper.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inFlight, m.requests, m.latency, m.authEvents, m.auditDropped, m.sessionsSwept,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument labels by route template so path ids do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m.inFlight.Inc()
		defer m.inFlight.Dec()
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// AuthEvent counts an auth outcome under its error code.
func (m *Metrics) AuthEvent(event string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ae *auth.AuthError
		if errors.As(err, &ae) {
			outcome = ae.Code
		}
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) AuditDropped() {
	if m != nil {
		m.auditDropped.Inc()
	}
}

func (m *Metrics) swept(n int64) {
	if m != nil {
		m.sessionsSwept.Add(float64(n))
	}
}
