package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	EventsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_submitted_total",
			Help: "Total number of events accepted into the channel",
		},
		[]string{"kind"},
	)

	EventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_rejected_total",
			Help: "Total number of submissions rejected (closed channel or cancelled producer)",
		},
		[]string{"kind"},
	)

	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_processed_total",
			Help: "Total number of events drained by the worker",
		},
		[]string{"kind", "status"}, // status: success|error
	)

	EventProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_event_processing_duration_seconds",
			Help:    "Per-event persistence duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	// Rollup metrics
	RollupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_rollup_runs_total",
			Help: "Total number of daily rollup regenerations",
		},
		[]string{"kind", "status"}, // kind: tool|client
	)

	RollupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_rollup_duration_seconds",
			Help:    "Daily rollup regeneration duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_worker_executions_total",
			Help: "Total number of background worker executions",
		},
		[]string{"worker", "status"},
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_worker_duration_seconds",
			Help:    "Background worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"path", "method"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(EventsSubmitted)
	prometheus.MustRegister(EventsRejected)
	prometheus.MustRegister(EventsProcessed)
	prometheus.MustRegister(EventProcessingDuration)

	prometheus.MustRegister(RollupRuns)
	prometheus.MustRegister(RollupDuration)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)

	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}

// RegisterQueueDepth exposes the channel depth as a gauge backed by the
// given callback.
func RegisterQueueDepth(pending func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pulse_event_queue_depth",
			Help: "Number of events currently buffered in the channel",
		},
		pending,
	))
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEventProcessed records one drained event
func RecordEventProcessed(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	EventsProcessed.WithLabelValues(kind, status).Inc()
	EventProcessingDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRollupRun records one daily rollup regeneration
func RecordRollupRun(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	RollupRuns.WithLabelValues(kind, status).Inc()
	RollupDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWorkerExecution records a background worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}
