// Package metrics provides Prometheus metrics for the tenancy pipeline and
// the scoped connection pool.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incident_desk"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	resolutionsTotal *prometheus.CounterVec
	acquireDuration  *prometheus.HistogramVec
	scopedConns      prometheus.Gauge
	scopeHeld        prometheus.Histogram
	discardedConns   prometheus.Counter
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenancy_resolutions_total",
				Help:      "Request context resolutions by outcome",
			},
			[]string{"outcome"},
		),
		acquireDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scope_acquire_wait_seconds",
				Help:      "Time spent waiting for a pooled connection",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"result"},
		),
		scopedConns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scoped_connections_in_use",
				Help:      "Connections currently bound to a schema",
			},
		),
		scopeHeld: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scope_held_seconds",
				Help:      "Time a connection stayed bound to a schema",
				Buckets:   prometheus.DefBuckets,
			},
		),
		discardedConns: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scope_discarded_connections_total",
				Help:      "Connections closed because their scope could not be reset",
			},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveResolution counts one pipeline outcome.
func (m *Metrics) ObserveResolution(outcome string) {
	m.resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAcquire records a checkout attempt.
func (m *Metrics) ObserveAcquire(wait time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.scopedConns.Inc()
	}
	m.acquireDuration.WithLabelValues(result).Observe(wait.Seconds())
}

// ObserveRelease records a connection leaving its scope.
func (m *Metrics) ObserveRelease(held time.Duration, discarded bool) {
	m.scopedConns.Dec()
	m.scopeHeld.Observe(held.Seconds())
	if discarded {
		m.discardedConns.Inc()
	}
}

// Middleware records request counts and latencies per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RegisterPoolStats exports the pool's counters as gauges read at scrape time.
func RegisterPoolStats(reg prometheus.Registerer, pool *database.ConnectionPool) {
	factory := promauto.With(reg)
	gauge := func(name, help string, value func(database.PoolStats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(pool.Stats()) })
	}

	gauge("max_connections", "Configured pool size", func(s database.PoolStats) float64 { return float64(s.MaxSize) })
	gauge("open_connections", "Open physical connections", func(s database.PoolStats) float64 { return float64(s.TotalConnections) })
	gauge("in_use_connections", "Connections checked out", func(s database.PoolStats) float64 { return float64(s.InUse) })
	gauge("idle_connections", "Idle connections", func(s database.PoolStats) float64 { return float64(s.Idle) })
	gauge("wait_count", "Checkouts that had to wait", func(s database.PoolStats) float64 { return float64(s.WaitCount) })
	gauge("wait_seconds", "Total time spent waiting for a connection", func(s database.PoolStats) float64 { return s.WaitDuration.Seconds() })
}
