// Package metrics provides Prometheus instrumentation for the relayer,
// exposed at GET /metrics alongside the spec's own /health/* surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AttestationsIngested counts successfully ingested attestations by
	// outcome.
	AttestationsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_attestations_ingested_total",
		Help: "Total attestations successfully ingested",
	}, []string{"outcome"})

	// AttestationsRejected counts rejected attestation submissions by reason.
	AttestationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_attestations_rejected_total",
		Help: "Total attestation submissions rejected",
	}, []string{"reason"})

	// FinalizeAttempts counts finalize transaction attempts by outcome.
	FinalizeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_finalize_attempts_total",
		Help: "Total finalize transaction attempts",
	}, []string{"result"})

	// SyncDuration tracks how long a single market sync takes.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayer_sync_duration_seconds",
		Help:    "Duration of a single market sync",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relayer_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and duration for every request that
// passes through it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
