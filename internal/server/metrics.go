package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/straja-ai/entityshield/internal/audit"
)

// Metrics holds the Prometheus collectors for the HTTP API.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EntitiesTotal   *prometheus.CounterVec

	handler http.Handler
}

// NewMetrics registers the API collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "entityshield",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entityshield",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EntitiesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "entityshield",
			Name:      "entities_detected_total",
			Help:      "Entity spans returned by category",
		}, []string{"category"}),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
}

// registerAudit exposes the emitter's delivery counters.
func registerAudit(reg *prometheus.Registry, em *audit.Emitter) {
	if reg == nil || em == nil {
		return
	}
	promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: "entityshield",
		Name:      "audit_events_enqueued_total",
		Help:      "Audit events accepted into the delivery queue",
	}, func() float64 {
		m := em.MetricsSnapshot()
		return float64(m.Enqueued())
	})
	promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: "entityshield",
		Name:      "audit_events_dropped_total",
		Help:      "Audit events dropped because the queue was full or closed",
	}, func() float64 {
		m := em.MetricsSnapshot()
		return float64(m.Dropped())
	})
}

func (m *Metrics) observe(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) countEntities(counts map[string]int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		m.EntitiesTotal.WithLabelValues(category).Add(float64(n))
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument wraps h so each request is counted under route.
func (m *Metrics) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		m.observe(route, status, time.Since(start))
	}
}
