package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts finished requests by route template and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todoapp_http_requests_total",
		Help: "Total HTTP requests handled.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "todoapp_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthFailuresTotal counts rejected logins and bearer tokens by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todoapp_auth_failures_total",
		Help: "Authentication failures by reason.",
	}, []string{"reason"})

	TodoDuplicatePreventedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todoapp_todo_duplicate_prevented_total",
		Help: "Todo creations answered from an earlier request with the same idempotency key.",
	})
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthFailuresTotal,
			TodoDuplicatePreventedTotal,
		)
	})
}
