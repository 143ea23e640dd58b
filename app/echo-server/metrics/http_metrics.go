package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DistributionRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prebid_optimizer_distribution_request_latency_seconds",
		Help:    "Latency of the distribution endpoints",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	DistributionRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prebid_optimizer_distribution_requests_total",
		Help: "Total requests served by the distribution endpoints",
	}, []string{"route", "code"})
)

func Init() {
	prometheus.MustRegister(DistributionRequestDuration, DistributionRequestTotal)
}

// Instrument records latency and status code per matched route.
func Instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the final status before we read it
				c.Error(err)
			}

			route := c.Path()
			DistributionRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
			DistributionRequestTotal.WithLabelValues(route, strconv.Itoa(c.Response().Status)).Inc()
			return nil
		}
	}
}
