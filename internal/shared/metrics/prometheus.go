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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Ingestion metrics
	readingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total number of readings accepted into the hot store",
		},
		[]string{"risk"},
	)

	readingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Total number of readings rejected by validation",
		},
		[]string{"field"},
	)

	alertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of high-risk alerts created",
		},
	)

	// Archive metrics
	archiveFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_flushes_total",
			Help: "Total number of cold-store flush attempts",
		},
		[]string{"status"},
	)

	archiveRecordsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_records_flushed_total",
			Help: "Total number of records written to the cold store",
		},
	)

	archiveBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_buffer_size",
			Help: "Number of entries currently buffered for the cold store",
		},
	)

	modelReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomaly_model_ready",
			Help: "Whether the anomaly model has finished training (1 = ready)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordReadingIngested records an accepted reading by risk tier
func RecordReadingIngested(risk string) {
	readingsIngested.WithLabelValues(risk).Inc()
}

// RecordReadingRejected records a validation rejection by offending field
func RecordReadingRejected(field string) {
	readingsRejected.WithLabelValues(field).Inc()
}

// RecordAlertCreated records a high-risk alert insertion
func RecordAlertCreated() {
	alertsCreated.Inc()
}

// RecordArchiveFlush records a flush attempt and its outcome
func RecordArchiveFlush(status string, records int) {
	archiveFlushes.WithLabelValues(status).Inc()
	if status == "success" {
		archiveRecordsFlushed.Add(float64(records))
	}
}

// SetArchiveBufferSize updates the buffered-entry gauge
func SetArchiveBufferSize(n int) {
	archiveBufferSize.Set(float64(n))
}

// SetModelReady updates the model readiness gauge
func SetModelReady(ready bool) {
	if ready {
		modelReady.Set(1)
	} else {
		modelReady.Set(0)
	}
}
