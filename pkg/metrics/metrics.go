package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Forse sync call latency (milliseconds)
	ForseCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forse_call_latency_ms",
			Help:    "Forse sync call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"operation", "status"},
	)

	// Store operation latency (seconds)
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Milestone store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "backend"},
	)

	// Milestone creation count
	MilestoneCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_created_count",
			Help: "Total number of milestones created",
		},
		[]string{"synced"}, // synced: true, false
	)

	// Slow query count
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of database queries exceeding the slow threshold",
		},
	)

	// Completion webhook count
	WebhookReceivedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_webhook_received_count",
			Help: "Total number of completion webhooks received",
		},
		[]string{"outcome"}, // outcome: updated, duplicate, orphan
	)
)

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordForseCallLatency records an outbound Forse call.
func RecordForseCallLatency(operation, status string, duration time.Duration) {
	ForseCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// RecordStoreOpDuration records a store operation.
func RecordStoreOpDuration(operation, backend string, duration time.Duration) {
	StoreOpDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// IncrementMilestoneCreated counts a created milestone.
func IncrementMilestoneCreated(synced bool) {
	if synced {
		MilestoneCreatedCount.WithLabelValues("true").Inc()
		return
	}
	MilestoneCreatedCount.WithLabelValues("false").Inc()
}

// IncrementSlowQuery counts a query that exceeded the slow threshold.
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementWebhookReceived counts an incoming completion webhook.
func IncrementWebhookReceived(outcome string) {
	WebhookReceivedCount.WithLabelValues(outcome).Inc()
}
