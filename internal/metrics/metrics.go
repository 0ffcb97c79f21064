// Package metrics defines the Prometheus collectors for the ingestion and
// scoring pipelines and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	IngestionRunsTotal  *prometheus.CounterVec
	IngestionItemsTotal *prometheus.CounterVec
	ScoringRunsTotal    *prometheus.CounterVec
	ScoreItemsTotal     *prometheus.CounterVec
	EnqueueTotal        *prometheus.CounterVec
	WorkerJobsTotal     *prometheus.CounterVec
	WorkerJobDuration   prometheus.Histogram
}

// New creates the collectors and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestionRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_runs_total",
				Help: "Ingestion runs by source and terminal status.",
			},
			[]string{"source", "status"},
		),
		IngestionItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_items_total",
				Help: "Ingested records by source and outcome (ok, skipped, error).",
			},
			[]string{"source", "status"},
		),
		ScoringRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scoring_runs_total",
				Help: "Scoring runs by terminal status.",
			},
			[]string{"status"},
		),
		ScoreItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "score_items_total",
				Help: "Scored jobs by outcome (finished, failed).",
			},
			[]string{"status"},
		),
		EnqueueTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scoring_enqueue_total",
				Help: "Scoring hand-offs by result (enqueued, unavailable, failed).",
			},
			[]string{"result"},
		),
		WorkerJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_total",
				Help: "Queue jobs processed by the worker by result (completed, failed, invalid).",
			},
			[]string{"result"},
		),
		WorkerJobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worker_job_duration_seconds",
				Help:    "Time spent executing one scoring run.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	m.registry.MustRegister(
		m.IngestionRunsTotal,
		m.IngestionItemsTotal,
		m.ScoringRunsTotal,
		m.ScoreItemsTotal,
		m.EnqueueTotal,
		m.WorkerJobsTotal,
		m.WorkerJobDuration,
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IngestionRun(source, status string) {
	if m == nil {
		return
	}
	m.IngestionRunsTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) IngestionItem(source, status string) {
	if m == nil {
		return
	}
	m.IngestionItemsTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ScoringRun(status string) {
	if m == nil {
		return
	}
	m.ScoringRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ScoreItem(status string) {
	if m == nil {
		return
	}
	m.ScoreItemsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Enqueue(result string) {
	if m == nil {
		return
	}
	m.EnqueueTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) WorkerJob(result string, seconds float64) {
	if m == nil {
		return
	}
	m.WorkerJobsTotal.WithLabelValues(result).Inc()
	m.WorkerJobDuration.Observe(seconds)
}
