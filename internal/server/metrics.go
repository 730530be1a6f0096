// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fahammohmd/pickme-go/internal/index"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askRequestsTotal counts completed /api/ask requests, partitioned by
	// outcome: "ok", "timeout", or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each /api/ask
	// request from decode to answer completion.
	askDurationSeconds *prometheus.HistogramVec

	// askSourcesReturned records how many grounding sources each successful
	// answer cited. A sustained zero suggests the corpus no longer covers
	// what investors are asking.
	askSourcesReturned prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pickme",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pickme",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests from receipt to answer completion.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		askSourcesReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pickme",
			Subsystem: "ask",
			Name:      "sources_returned",
			Help:      "Number of grounding sources cited per successful answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pickme",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pickme",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// registerIndexGauge exposes the index lifecycle as a gauge so dashboards
// can alert on a server that is up but cannot answer questions.
func registerIndexGauge(reg prometheus.Registerer, status IndexStatus) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pickme",
		Subsystem: "index",
		Name:      "ready",
		Help:      "1 when the document index is READY, 0 otherwise.",
	}, func() float64 {
		if status.State() == index.StateReady {
			return 1
		}
		return 0
	})
}

// instrument wraps a handler with per-endpoint request counting and latency
// observation, labelled by the logical handler name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		timer := prometheus.NewTimer(s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name))
		next.ServeHTTP(rw, r)
		timer.ObserveDuration()

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, httpStatusLabel(rw.status)).Inc()
	})
}

// httpStatusLabel converts a numeric status code to its metric label.
func httpStatusLabel(code int) string {
	return strconv.Itoa(code)
}
