package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	apiRequestsTotal        *prometheus.CounterVec
	apiLatencySeconds       *prometheus.HistogramVec
	apiErrorsTotal          *prometheus.CounterVec
	workflowTransitions     *prometheus.CounterVec
	notificationsDispatched *prometheus.CounterVec
	notificationQueueDepth  prometheus.Gauge
	requestListCache        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the workflow engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		workflowTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Event request operations by action and outcome kind.",
		}, []string{"action", "outcome"})

		notificationsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification deliveries by type and result.",
		}, []string{"type", "result"})

		notificationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Notifications waiting for the background dispatcher.",
		})

		requestListCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "request_list_cache_total",
			Help: "Request list cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			workflowTransitions,
			notificationsDispatched,
			notificationQueueDepth,
			requestListCache,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// WorkflowTransitions counts engine outcomes. The outcome label is "ok" or an error kind.
func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowTransitions
}

// NotificationsDispatched counts notification deliveries.
func NotificationsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsDispatched
}

// NotificationQueueDepth tracks the dispatcher backlog.
func NotificationQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return notificationQueueDepth
}

// RequestListCache counts cache hits and misses for request listings.
func RequestListCache() *prometheus.CounterVec {
	RegisterMetrics()
	return requestListCache
}
