// Package metrics holds the Prometheus collectors of the download service
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts download requests reaching each state
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_requests_total",
		Help: "Download requests by state reached",
	}, []string{"state"})

	// CoreFilesGenerated counts core files written to the cache
	CoreFilesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_core_files_generated_total",
		Help: "Core files written to the cache",
	})

	// CoreRows counts records streamed into core files
	CoreRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_core_rows_total",
		Help: "Records written to core files",
	})

	// DerivativeCacheHits counts runs that reused a finished archive
	DerivativeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_derivative_cache_hits_total",
		Help: "Runs served from an existing derivative archive",
	})

	// RunDuration observes how long a run takes per format
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "downloads_run_duration_seconds",
		Help:    "Duration of download runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 4, 10),
	}, []string{"format"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_http_requests_total",
		Help: "HTTP requests handled",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "downloads_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware counts HTTP requests. It labels requests with the matched chi route pattern
// so label cardinality stays bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
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

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
