package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the ingestion pipeline.
type Metrics struct {
	StageSeconds     *prometheus.HistogramVec
	RunsTotal        *prometheus.CounterVec
	MissingArtifacts prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// DefaultMetrics registers on the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates pipeline metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lectern_stage_seconds",
				Help:    "Wall-clock time per pipeline stage",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage", "status"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lectern_runs_total",
				Help: "Completed pipeline runs by outcome",
			},
			[]string{"status"},
		),
		MissingArtifacts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lectern_missing_artifacts_total",
				Help: "Note artifacts that failed to generate",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lectern_ingest_queue_depth",
				Help: "Jobs waiting in the ingest queue",
			},
		),
	}
}
