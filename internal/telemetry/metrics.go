package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_jobs_submitted_total", Help: "Video jobs accepted"})
	JobsSucceeded     = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_jobs_succeeded_total", Help: "Video jobs that produced a clip"})
	JobsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_jobs_failed_total", Help: "Video jobs recorded as errors"})
	GenerationRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_generation_retries_total", Help: "Generation attempts made with a simplified prompt"})
	StorageFallbacks  = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_storage_fallbacks_total", Help: "Videos left on the provider URL because durable storage failed"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	TaskPanics        = prometheus.NewCounter(prometheus.CounterOpts{Name: "framecast_task_panics_total", Help: "Background tasks that panicked"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "framecast_jobs_inflight", Help: "Pipelines currently running"})
	PipelineDuration  = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "framecast_pipeline_duration_seconds",
		Help:    "Wall time from pipeline start to terminal record",
		Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 900},
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsSucceeded,
			JobsFailed,
			GenerationRetries,
			StorageFallbacks,
			RateLimitRejects,
			TaskPanics,
			InFlightGauge,
			PipelineDuration,
		)
	})
	return promhttp.Handler()
}
