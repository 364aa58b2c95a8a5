package batch

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for batch execution.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	batchesTotal       *prometheus.CounterVec
	checkpointFailures prometheus.Counter
	progressRatio      prometheus.Gauge
}

// NewMetrics creates and registers batch metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_jobs_total",
		Help: "Total number of job attempts by outcome",
	}, []string{"outcome"})
	batchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_batches_total",
		Help: "Total number of batches by terminal result",
	}, []string{"result"})
	checkpointFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_checkpoint_failures_total",
		Help: "Total number of checkpoint writes that failed",
	})
	progressRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clipforge_batch_progress_ratio",
		Help: "Fraction of jobs attempted in the current batch",
	})

	registry.MustRegister(
		jobsTotal,
		batchesTotal,
		checkpointFailures,
		progressRatio,
	)

	return &Metrics{
		registry:           registry,
		jobsTotal:          jobsTotal,
		batchesTotal:       batchesTotal,
		checkpointFailures: checkpointFailures,
		progressRatio:      progressRatio,
	}
}

// Registry exposes the underlying registry so other components can add
// their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncJob counts one job attempt.
func (m *Metrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
}

// IncBatch counts one batch reaching a terminal state.
func (m *Metrics) IncBatch(result Status) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(string(result)).Inc()
}

// IncCheckpointFailures counts one failed checkpoint write.
func (m *Metrics) IncCheckpointFailures() {
	if m == nil {
		return
	}
	m.checkpointFailures.Inc()
}

// SetProgress sets the progress gauge.
func (m *Metrics) SetProgress(ratio float64) {
	if m == nil {
		return
	}
	m.progressRatio.Set(ratio)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
