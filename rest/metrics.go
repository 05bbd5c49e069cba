package rest

import "github.com/prometheus/client_golang/prometheus"

var (
	restRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_rest_requests_total",
			Help: "REST requests by method and response status",
		},
		[]string{"method", "status"},
	)

	restRatelimitCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_rest_ratelimits_total",
			Help: "REST rate limits encountered by kind",
		},
		[]string{"kind"},
	)

	restRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandwich_rest_retries_total",
			Help: "REST request attempts beyond the first",
		},
	)
)

// Collectors returns the REST metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		restRequestCount,
		restRatelimitCount,
		restRetryCount,
	}
}
