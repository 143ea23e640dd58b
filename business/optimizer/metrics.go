package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OptimizerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prebid_optimizer_runs_total",
			Help: "Count of optimizer runs by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	OptimizerRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prebid_optimizer_run_duration_seconds",
			Help:    "Duration of GenerateDistributions by model.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"model"},
	)

	OptimizerModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prebid_optimizer_model_calls_total",
			Help: "Count of per-action, per-hour reward model invocations.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(OptimizerRunsTotal, OptimizerRunDuration, OptimizerModelCallsTotal)
}
