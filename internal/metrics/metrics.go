// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingress
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_webhook_requests_total",
			Help: "Webhook deliveries by result",
		},
		[]string{"result"}, // "processed", "skipped", "ignored", "unauthorized", "malformed", "error"
	)

	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lnsync_webhook_duration_seconds",
			Help:    "Time spent handling a webhook delivery",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sync engine
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_sync_outcomes_total",
			Help: "Resolver decisions by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: "created", "updated", "skipped"
	)

	ConversionPath = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_conversion_path_total",
			Help: "Content conversions by path taken",
		},
		[]string{"path"}, // "oracle", "fallback", "empty"
	)

	OracleBlocksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lnsync_oracle_blocks_dropped_total",
			Help: "Oracle output elements dropped or skipped during normalization",
		},
	)

	BlocksDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_blocks_deleted_total",
			Help: "Block deletions during range replacement",
		},
		[]string{"result"}, // "deleted", "failed"
	)

	// Rollup
	RollupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_rollup_runs_total",
			Help: "Rollup aggregation runs by result",
		},
		[]string{"result"}, // "success", "partial", "empty", "error"
	)

	RollupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lnsync_rollup_duration_seconds",
			Help:    "Duration of a rollup aggregation",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	RollupRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lnsync_rollup_records",
			Help: "Records included in the last rollup",
		},
	)

	// Outbound HTTP
	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_external_requests_total",
			Help: "Outbound API calls by service and status code",
		},
		[]string{"service", "code"},
	)

	ExternalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lnsync_external_request_duration_seconds",
			Help:    "Outbound API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	ExternalRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_external_retries_total",
			Help: "Retries after HTTP 429 responses",
		},
		[]string{"service"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lnsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_circuit_breaker_requests_total",
			Help: "Requests through circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnsync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordExternal records one outbound call.
func RecordExternal(service string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	ExternalRequests.WithLabelValues(service, code).Inc()
	ExternalDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}
