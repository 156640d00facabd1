package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "response_time",
			Help:    "http response time.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsFromRole = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_from_role", Help: "http requests from role"},
		[]string{"role"},
	)

	totalHttpRequestsFromTenant = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_from_tenant", Help: "http requests by identity zone"},
		[]string{"tenant"},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_to_uri", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	destinationSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "destination_step_total", Help: "destination call chain steps by outcome"},
		[]string{"step", "outcome"},
	)

	destinationStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "destination_step_duration_seconds",
			Help:    "destination call chain step latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"step"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsFromRole,
		totalHttpRequestsFromTenant,
		totalHttpRequestsToUri,
		totalHttpRequests,
		destinationSteps,
		destinationStepDuration,
	)
}
