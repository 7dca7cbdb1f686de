package processor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the processing pipeline.
//
// All metrics use the "inkvault_processor_" prefix. Methods handle a nil
// receiver gracefully, so a nil *Metrics acts as a no-op when metrics
// are disabled.
type Metrics struct {
	// FilesProcessed counts completed process_file runs by result.
	// Labels: result=[success, failure]
	FilesProcessed *prometheus.CounterVec

	// TasksRun counts module invocations by task type and result.
	// Labels: task_type, result=[completed, failed, skipped]
	TasksRun *prometheus.CounterVec

	// QueueDepth tracks the number of files waiting in the queue.
	QueueDepth prometheus.Gauge

	// InFlight tracks files currently being processed.
	InFlight prometheus.Gauge

	// StageDuration tracks module execution time by task type.
	StageDuration *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers the pipeline metrics. Idempotent:
// repeated calls return the same instance. A nil registerer uses the
// Prometheus default.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &Metrics{
			FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "inkvault_processor_files_processed_total",
				Help: "Completed process_file runs by result.",
			}, []string{"result"}),
			TasksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "inkvault_processor_tasks_run_total",
				Help: "Module invocations by task type and result.",
			}, []string{"task_type", "result"}),
			QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "inkvault_processor_queue_depth",
				Help: "Files waiting in the processing queue.",
			}),
			InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "inkvault_processor_in_flight",
				Help: "Files currently being processed.",
			}),
			StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "inkvault_processor_stage_duration_seconds",
				Help:    "Module execution time by task type.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			}, []string{"task_type"}),
		}
		registerer.MustRegister(
			m.FilesProcessed, m.TasksRun, m.QueueDepth, m.InFlight, m.StageDuration,
		)
		metricsInstance = m
	})
	return metricsInstance
}

func (m *Metrics) fileDone(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.FilesProcessed.WithLabelValues(result).Inc()
}

func (m *Metrics) taskDone(taskType, result string) {
	if m == nil {
		return
	}
	m.TasksRun.WithLabelValues(taskType, result).Inc()
}

func (m *Metrics) queueDelta(d float64) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(d)
}

func (m *Metrics) inFlightDelta(d float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(d)
}

func (m *Metrics) observeStage(taskType string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(taskType).Observe(seconds)
}
