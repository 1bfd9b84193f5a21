package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_requests_total",
			Help: "Extraction requests by terminal status",
		},
		[]string{"status", "kind"},
	)

	backendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_backend_attempts_total",
			Help: "Backend invocations by backend and result",
		},
		[]string{"backend", "result"},
	)

	extractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extraction_duration_seconds",
		Help:    "Wall-clock time from intake acceptance to terminal state",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	scratchFilesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scratch_files_active",
		Help: "Temporary upload files currently on disk",
	})
)

// IncExtraction counts a terminal extraction. kind is the backend used on
// success or the error kind on failure.
func IncExtraction(status, kind string) {
	extractionsTotal.WithLabelValues(status, kind).Inc()
}

// IncBackendAttempt counts one backend invocation.
func IncBackendAttempt(backend, result string) {
	backendAttemptsTotal.WithLabelValues(backend, result).Inc()
}

// ObserveExtractionDuration records a processing time.
func ObserveExtractionDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	extractionDuration.Observe(d.Seconds())
}

// ScratchFileAcquired and ScratchFileReleased track live temp files.
func ScratchFileAcquired() { scratchFilesActive.Inc() }

func ScratchFileReleased() { scratchFilesActive.Dec() }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
