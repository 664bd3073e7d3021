package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iph_training_runs_total",
			Help: "Total number of training runs",
		},
		[]string{"policy", "status"},
	)

	ModelFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iph_model_fit_duration_seconds",
			Help:    "Time spent training and evaluating a single model variant",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"model"},
	)

	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iph_forecasts_total",
			Help: "Total number of forecasts generated",
		},
		[]string{"model", "method"},
	)

	DriftChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iph_drift_checks_total",
			Help: "Total number of drift checks by recommendation",
		},
		[]string{"recommendation"},
	)

	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iph_persistence_errors_total",
			Help: "Artifact and history persistence failures",
		},
		[]string{"operation"},
	)
)
