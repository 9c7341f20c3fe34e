package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records pipeline outcomes. It satisfies ports.PipelineObserver.
type PipelineMetrics struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "runs_total",
			Help:        "Completed pipeline runs by entry point and final status.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"entry", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds by outcome.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	registerer.MustRegister(runsTotal, stageDuration)

	return &PipelineMetrics{
		runsTotal:     runsTotal,
		stageDuration: stageDuration,
	}
}

func (m *PipelineMetrics) ObserveRun(entry, status string) {
	if status == "" {
		status = "unknown"
	}
	m.runsTotal.WithLabelValues(entry, status).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage, status string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}
