// Package telemetry holds the service's logger setup and Prometheus metrics.
//
// Metrics are registered on the default registry and served from /metrics
// when METRICS_ENABLED is true.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by the chi route pattern rather than the raw URL.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Governance metrics.
var (
	// AuthorizationDenialsTotal counts Forbidden decisions by action.
	AuthorizationDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_authorization_denials_total",
			Help: "Total number of authorization decisions that denied the caller, by action.",
		},
		[]string{"action"},
	)

	// LoginAttemptsTotal counts logins by outcome (success, failure).
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_login_attempts_total",
			Help: "Total number of login attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	// AccessRequestsResolvedTotal counts resolutions by decision.
	AccessRequestsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_access_requests_resolved_total",
			Help: "Total number of access requests resolved, by decision.",
		},
		[]string{"decision"},
	)

	// AuditEntriesTotal counts committed audit entries by action tag.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_audit_entries_total",
			Help: "Total number of audit log entries committed, by action tag.",
		},
		[]string{"action"},
	)

	// AuditPublishFailuresTotal counts audit events that could not be fanned out.
	AuditPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iam_audit_publish_failures_total",
			Help: "Total number of committed audit entries that failed to publish to the message queue.",
		},
	)
)
