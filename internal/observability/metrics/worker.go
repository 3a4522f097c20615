package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineMetrics on its own registry.
type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	emailsTotal        *prometheus.CounterVec
	classifierDuration *prometheus.HistogramVec
	persistTotal       *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jat",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total finished pipeline runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jat",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	emailsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jat",
			Subsystem: "pipeline",
			Name:      "emails_total",
			Help:      "Total processed emails by outcome.",
		},
		[]string{"service", "outcome"},
	)
	classifierDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jat",
			Subsystem: "classifier",
			Name:      "call_duration_seconds",
			Help:      "Classifier call duration in seconds by status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "status"},
	)
	persistTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jat",
			Subsystem: "store",
			Name:      "persist_total",
			Help:      "Total email persist attempts by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(runsTotal, runDuration, emailsTotal, classifierDuration, persistTotal)

	return &PipelineMetrics{
		service:            service,
		registry:           registry,
		runsTotal:          runsTotal,
		runDuration:        runDuration,
		emailsTotal:        emailsTotal,
		classifierDuration: classifierDuration,
		persistTotal:       persistTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveEmail(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.emailsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveClassifier(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.classifierDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObservePersist(result string) {
	if result == "" {
		result = "unknown"
	}
	m.persistTotal.WithLabelValues(m.service, result).Inc()
}

func (m *PipelineMetrics) ObserveRun(status domain.RunStatus, duration time.Duration) {
	m.runsTotal.WithLabelValues(m.service, string(status)).Inc()
	if duration > 0 {
		m.runDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
	}
}
