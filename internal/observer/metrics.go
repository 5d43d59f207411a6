package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for lead ingestion metrics
	ingestLabels = []string{"scope_id", "contact_status"}
	// Labels for ingestion rejections
	ingestRejectLabels = []string{"scope_id", "error_type"}
	// Labels for rule evaluation metrics
	ruleMatchLabels = []string{"scope_id", "rule_kind"}

	// Lead Ingestion Counters
	LeadsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_routing_leads_received_total",
			Help: "Total number of lead submissions accepted, labeled by contact resolution status.",
		},
		ingestLabels,
	)
	LeadsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_routing_leads_rejected_total",
			Help: "Total number of lead submissions rejected before persistence.",
		},
		ingestRejectLabels,
	)

	// Histogram for end-to-end ingestion duration
	IngestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_routing_ingest_duration_seconds",
			Help:    "Histogram of lead ingestion durations (validate, resolve, persist, match, enqueue).",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"scope_id"},
	)

	// Histogram for rule evaluation duration
	RuleMatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_routing_rule_match_duration_seconds",
			Help:    "Histogram of rule set evaluation durations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~400ms
		},
		ruleMatchLabels,
	)

	// Counter for rule match outcomes
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_routing_rule_matches_total",
			Help: "Total number of rule evaluations, labeled by kind and whether any rule matched.",
		},
		[]string{"scope_id", "rule_kind", "matched"},
	)
)

// Metrics related to dispatch processing
var (
	dispatchFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_fetch_requests_total",
		Help: "Total number of fetch requests made to the forwards stream.",
	})
	dispatchFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_fetch_errors_total",
		Help: "Total number of errors encountered during forwards stream fetch requests.",
	})
	dispatchQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_length",
		Help: "Current number of jobs waiting in the internal dispatch worker channel.",
	})
	dispatchWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_workers_active",
		Help: "Current number of active worker goroutines in the dispatch pool.",
	})

	// Labels for scope-specific dispatch metrics
	dispatchScopeLabels = []string{"scope_id"}

	dispatchTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_submitted_total",
			Help: "Total number of delivery jobs submitted to the dispatch worker pool.",
		},
		dispatchScopeLabels,
	)
	dispatchDeliveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_delivery_duration_seconds",
			Help:    "Histogram of delivery attempt durations, including the outbound HTTP call.",
			Buckets: prometheus.DefBuckets,
		},
		dispatchScopeLabels,
	)
	dispatchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Total number of retry attempts (NAKs with delay) for delivery jobs.",
		},
		dispatchScopeLabels,
	)
	dispatchAcksSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_acks_success_total",
			Help: "Total number of successful acknowledgements (ACKs) for delivery jobs.",
		},
		dispatchScopeLabels,
	)
	dispatchAcksFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_acks_failure_total",
			Help: "Total number of failed acknowledgements (NAKs, Term) for delivery jobs (excluding retries).",
		},
		dispatchScopeLabels,
	)
	dispatchTasksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_dropped_total",
			Help: "Total number of delivery jobs terminally failed after exceeding max retries.",
		},
		dispatchScopeLabels,
	)

	forwardOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_forward_outcomes_total",
			Help: "Total number of forwarding log entries written, labeled by outcome.",
		},
		[]string{"scope_id", "outcome"},
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "scope_id", "status"}

	// Histogram for Database Operation Duration
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_routing_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Cache Metrics ---
var (
	cacheCheckLabels = []string{"scope_id", "cache", "result"}

	cacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_routing_cache_checks_total",
			Help: "Total number of cache lookups, labeled by cache kind and result.",
		},
		cacheCheckLabels,
	)
)

// --- Lead Seeder Metrics ---
var (
	seederLabels = []string{"scope_id"}

	seederLeadsAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_seeder_leads_attempted_total",
			Help: "Total number of leads the seeder attempted to submit.",
		},
		seederLabels,
	)
	seederLeadsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_seeder_leads_submitted_total",
			Help: "Total number of leads successfully accepted by the ingest endpoint.",
		},
		seederLabels,
	)
	seederSubmitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_seeder_submit_errors_total",
			Help: "Total number of errors encountered by the seeder during submission.",
		},
		seederLabels,
	)
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// Global metrics instance
var Metrics *metricsStore

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		metricsEnabled = false
		return
	}

	metricsEnabled = true

	// Metrics are already auto-registered via promauto; this exists for
	// global setup such as custom collectors.
	Metrics = &metricsStore{}
}

// sanitizeScope ensures the scope label is valid or returns a default value.
func sanitizeScope(scopeID string) string {
	if scopeID == "" {
		return "unknown"
	}
	return scopeID
}

// --- Ingest Metric Helpers ---

// IncLeadsReceived increments the accepted-leads counter.
func IncLeadsReceived(scopeID, contactStatus string) {
	if !metricsEnabled {
		return
	}
	LeadsReceivedTotal.WithLabelValues(sanitizeScope(scopeID), contactStatus).Inc()
}

// IncLeadsRejected increments the rejected-leads counter.
func IncLeadsRejected(scopeID, errorType string) {
	if !metricsEnabled {
		return
	}
	LeadsRejectedTotal.WithLabelValues(sanitizeScope(scopeID), SanitizeErrorType(errorType)).Inc()
}

// ObserveIngestDuration records the end-to-end processing time for a submission.
func ObserveIngestDuration(scopeID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	IngestDurationSeconds.WithLabelValues(sanitizeScope(scopeID)).Observe(duration.Seconds())
}

// ObserveRuleMatchDuration records the evaluation time for a rule set.
func ObserveRuleMatchDuration(scopeID, ruleKind string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	RuleMatchDurationSeconds.WithLabelValues(sanitizeScope(scopeID), ruleKind).Observe(duration.Seconds())
}

// IncRuleMatches increments the rule evaluation counter.
func IncRuleMatches(scopeID, ruleKind string, matched bool) {
	if !metricsEnabled {
		return
	}
	matchedLabel := "false"
	if matched {
		matchedLabel = "true"
	}
	RuleMatchesTotal.WithLabelValues(sanitizeScope(scopeID), ruleKind, matchedLabel).Inc()
}

// --- Dispatch Metric Helpers ---

// IncDispatchFetchRequest increments the forwards stream fetch request counter.
func IncDispatchFetchRequest() {
	if Metrics != nil {
		dispatchFetchRequestsTotal.Inc()
	}
}

// IncDispatchFetchError increments the forwards stream fetch error counter.
func IncDispatchFetchError() {
	if Metrics != nil {
		dispatchFetchErrorsTotal.Inc()
	}
}

// SetDispatchQueueLength sets the current internal dispatch queue length.
func SetDispatchQueueLength(length int) {
	if Metrics != nil {
		dispatchQueueLength.Set(float64(length))
	}
}

// IncDispatchTasksSubmitted increments the counter for jobs submitted to the pool.
func IncDispatchTasksSubmitted(scopeID string) {
	if Metrics != nil {
		dispatchTasksSubmittedTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// SetDispatchWorkersActive sets the current number of active dispatch workers.
func SetDispatchWorkersActive(count int) {
	if Metrics != nil {
		dispatchWorkersActive.Set(float64(count))
	}
}

// ObserveDispatchDeliveryDuration records the processing time for a delivery attempt.
func ObserveDispatchDeliveryDuration(scopeID string, duration time.Duration) {
	if Metrics != nil {
		dispatchDeliveryDurationSeconds.WithLabelValues(sanitizeScope(scopeID)).Observe(duration.Seconds())
	}
}

// IncDispatchRetry increments the counter for delivery retry attempts.
func IncDispatchRetry(scopeID string) {
	if Metrics != nil {
		dispatchRetriesTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncDispatchAckSuccess increments the counter for successful delivery ACKs.
func IncDispatchAckSuccess(scopeID string) {
	if Metrics != nil {
		dispatchAcksSuccessTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncDispatchAckFailure increments the counter for failed delivery ACKs/TERMs (non-retry).
func IncDispatchAckFailure(scopeID string) {
	if Metrics != nil {
		dispatchAcksFailureTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncDispatchTasksDropped increments the counter for jobs dropped after max retries.
func IncDispatchTasksDropped(scopeID string) {
	if Metrics != nil {
		dispatchTasksDroppedTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncForwardOutcome increments the per-outcome forwarding log counter.
func IncForwardOutcome(scopeID, outcome string) {
	if Metrics != nil {
		forwardOutcomesTotal.WithLabelValues(sanitizeScope(scopeID), outcome).Inc()
	}
}

// --- Database Metric Helpers ---

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, scopeID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeScope(scopeID), status).Observe(duration.Seconds())
}

// --- Cache Metric Helpers ---

// IncCacheCheck increments the cache lookup counter.
func IncCacheCheck(scopeID, cacheKind, result string) {
	if !metricsEnabled {
		return
	}
	cacheChecksTotal.WithLabelValues(sanitizeScope(scopeID), cacheKind, result).Inc()
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	// Simple categorization based on common patterns or known error types
	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// --- Lead Seeder Metric Helpers ---

// IncSeederLeadsAttempted increments the counter for attempted seeder submissions.
func IncSeederLeadsAttempted(scopeID string) {
	if Metrics != nil {
		seederLeadsAttemptedTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncSeederLeadsSubmitted increments the counter for accepted seeder submissions.
func IncSeederLeadsSubmitted(scopeID string) {
	if Metrics != nil {
		seederLeadsSubmittedTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}

// IncSeederSubmitErrors increments the counter for seeder submission errors.
func IncSeederSubmitErrors(scopeID string) {
	if Metrics != nil {
		seederSubmitErrorsTotal.WithLabelValues(sanitizeScope(scopeID)).Inc()
	}
}
