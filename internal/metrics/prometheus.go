// Package metrics provides Prometheus exporters for the rewards engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the rewards engine.
var (
	// Contribution ledger.
	ContributionsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_contributions_recorded_total",
			Help: "Total contribution events processed",
		},
		[]string{"result"}, // recorded, duplicate
	)

	ContributionWeightGrams = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hero_contribution_weight_grams",
			Help:    "Saved food weight per recorded contribution",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50g to ~25kg
		},
	)

	// Level transitions.
	GradeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_grade_transitions_total",
			Help: "Total level transitions committed",
		},
		[]string{"trigger", "to_grade"},
	)

	GradeConfigurationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hero_grade_configuration_errors_total",
			Help: "Grade computations that ran against an inconsistent grade table",
		},
	)

	ActiveGradeTableVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hero_active_grade_table_version",
			Help: "Version of the currently active grade table",
		},
	)

	// Per-consumer serialisation.
	LockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hero_consumer_lock_wait_seconds",
			Help:    "Time spent waiting for the per-consumer lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	ConcurrencyConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hero_concurrency_conflicts_total",
			Help: "Operations rejected because the consumer lock could not be acquired in time",
		},
	)

	// Badge gamification metrics.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge_type"},
	)

	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hero_active_badge_holders",
			Help: "Current number of consumers holding each badge",
		},
		[]string{"badge_type"},
	)

	// Admin actions.
	AdminActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_admin_actions_total",
			Help: "Total administrative mutations",
		},
		[]string{"action", "status"},
	)

	// Event publishing.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_events_published_total",
			Help: "Change notifications published",
		},
		[]string{"type", "status"},
	)

	// Scheduler metrics.
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_reconcile_runs_total",
			Help: "Total reconciliation job executions",
		},
		[]string{"status"},
	)

	ReconcileConsumersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hero_reconcile_consumers_processed_total",
			Help: "Consumers re-evaluated by the reconciliation job",
		},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hero_reconcile_last_run_timestamp",
			Help: "Unix timestamp of last reconciliation run",
		},
	)

	ReconcileDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hero_reconcile_duration_seconds",
			Help:    "Time taken to execute the reconciliation job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
	)

	// HTTP API.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hero_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hero_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordContribution records a processed contribution event.
func RecordContribution(duplicate bool, weightG int64) {
	if duplicate {
		ContributionsRecordedTotal.WithLabelValues("duplicate").Inc()
		return
	}
	ContributionsRecordedTotal.WithLabelValues("recorded").Inc()
	ContributionWeightGrams.Observe(float64(weightG))
}

// RecordGradeTransition records a committed level change.
func RecordGradeTransition(trigger, toGrade string) {
	GradeTransitionsTotal.WithLabelValues(trigger, toGrade).Inc()
}

// RecordConfigurationError records a grade computation against a broken table.
func RecordConfigurationError() {
	GradeConfigurationErrorsTotal.Inc()
}

// SetActiveGradeTableVersion sets the active grade table version.
func SetActiveGradeTableVersion(version uint) {
	ActiveGradeTableVersion.Set(float64(version))
}

// ObserveLockWait observes time spent acquiring a consumer lock.
func ObserveLockWait(seconds float64) {
	LockWaitSeconds.Observe(seconds)
}

// RecordConcurrencyConflict records a lock timeout.
func RecordConcurrencyConflict() {
	ConcurrencyConflictsTotal.Inc()
}

// RecordBadgeAwarded records a badge award event.
func RecordBadgeAwarded(badgeType string) {
	BadgesAwardedTotal.WithLabelValues(badgeType).Inc()
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeType string, count int64) {
	ActiveBadgeHolders.WithLabelValues(badgeType).Set(float64(count))
}

// RecordAdminAction records an administrative mutation attempt.
func RecordAdminAction(action, status string) {
	AdminActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordEventPublished records a publish attempt.
func RecordEventPublished(eventType, status string) {
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordReconcileRun records a reconciliation job execution.
func RecordReconcileRun(status string) {
	ReconcileRunsTotal.WithLabelValues(status).Inc()
}

// AddReconcileConsumers adds to the number of consumers re-evaluated.
func AddReconcileConsumers(n int) {
	ReconcileConsumersProcessed.Add(float64(n))
}

// SetReconcileLastRun sets the timestamp of the last reconciliation run.
func SetReconcileLastRun() {
	ReconcileLastRunTimestamp.SetToCurrentTime()
}

// ObserveReconcileDuration observes the duration of a reconciliation run.
func ObserveReconcileDuration(seconds float64) {
	ReconcileDurationSeconds.Observe(seconds)
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(seconds)
}
