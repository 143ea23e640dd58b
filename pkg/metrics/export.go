package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Publish attempts per sink and status (ok|error)
	DistributionPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prebid_optimizer_publish_total",
		Help: "Total distribution publish attempts by sink and status",
	}, []string{"sink", "status"})

	// Latency of a single publish call
	DistributionPublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prebid_optimizer_publish_latency_seconds",
		Help:    "Latency of distribution publish calls by sink",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
)

func Init() {
	prometheus.MustRegister(
		DistributionPublishTotal,
		DistributionPublishLatency,
	)
}
