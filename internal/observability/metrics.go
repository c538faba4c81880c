package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's stage counters and histograms, registered
// against its own registry so repeated runs in tests never collide with
// the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	FilesProcessed *prometheus.CounterVec
	AlertsTotal    prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// NewMetrics constructs and registers the pipeline's metrics collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "simcheck_pipeline_runs_total",
			Help: "Total number of run_pipeline invocations by terminal state.",
		}, []string{"state"}),
		StageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simcheck_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		FilesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "simcheck_files_processed_total",
			Help: "Total number of files classified, by status.",
		}, []string{"status"}),
		AlertsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "simcheck_alerts_total",
			Help: "Total number of peer comparisons that crossed the alert threshold.",
		}),
		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "simcheck_worker_queue_depth",
			Help: "Current depth of the orchestrator's worker pool queue.",
		}),
	}

	return m
}

// Handler exposes the registry on a /metrics-style HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun increments the terminal-state counter for one run_pipeline call.
func (m *Metrics) RecordRun(state string) {
	m.RunsTotal.WithLabelValues(state).Inc()
}
