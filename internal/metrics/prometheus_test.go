package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordContribution(t *testing.T) {
	// Reset the counter before test
	ContributionsRecordedTotal.Reset()

	RecordContribution(false, 400)
	RecordContribution(false, 250)
	RecordContribution(true, 400)

	count := testutil.ToFloat64(ContributionsRecordedTotal.WithLabelValues("recorded"))
	if count != 2 {
		t.Errorf("Expected recorded count = 2, got %f", count)
	}

	count = testutil.ToFloat64(ContributionsRecordedTotal.WithLabelValues("duplicate"))
	if count != 1 {
		t.Errorf("Expected duplicate count = 1, got %f", count)
	}
}

func TestRecordGradeTransition(t *testing.T) {
	GradeTransitionsTotal.Reset()

	RecordGradeTransition("automatic", "silver")
	RecordGradeTransition("automatic", "silver")
	RecordGradeTransition("admin", "gold")

	count := testutil.ToFloat64(GradeTransitionsTotal.WithLabelValues("automatic", "silver"))
	if count != 2 {
		t.Errorf("Expected automatic silver transitions = 2, got %f", count)
	}
	count = testutil.ToFloat64(GradeTransitionsTotal.WithLabelValues("admin", "gold"))
	if count != 1 {
		t.Errorf("Expected admin gold transitions = 1, got %f", count)
	}
}

func TestRecordConfigurationError(t *testing.T) {
	before := testutil.ToFloat64(GradeConfigurationErrorsTotal)
	RecordConfigurationError()

	if got := testutil.ToFloat64(GradeConfigurationErrorsTotal); got != before+1 {
		t.Errorf("Expected configuration errors = %f, got %f", before+1, got)
	}
}

func TestSetActiveGradeTableVersion(t *testing.T) {
	SetActiveGradeTableVersion(3)

	if got := testutil.ToFloat64(ActiveGradeTableVersion); got != 3 {
		t.Errorf("Expected version gauge = 3, got %f", got)
	}
}

func TestRecordConcurrencyConflict(t *testing.T) {
	before := testutil.ToFloat64(ConcurrencyConflictsTotal)
	RecordConcurrencyConflict()
	RecordConcurrencyConflict()

	if got := testutil.ToFloat64(ConcurrencyConflictsTotal); got != before+2 {
		t.Errorf("Expected conflicts = %f, got %f", before+2, got)
	}
}

func TestBadgeMetrics(t *testing.T) {
	BadgesAwardedTotal.Reset()
	ActiveBadgeHolders.Reset()

	RecordBadgeAwarded("welcome")
	RecordBadgeAwarded("welcome")
	SetActiveBadgeHolders("welcome", 42)

	if got := testutil.ToFloat64(BadgesAwardedTotal.WithLabelValues("welcome")); got != 2 {
		t.Errorf("Expected welcome awards = 2, got %f", got)
	}
	if got := testutil.ToFloat64(ActiveBadgeHolders.WithLabelValues("welcome")); got != 42 {
		t.Errorf("Expected welcome holders = 42, got %f", got)
	}
}

func TestRecordAdminAction(t *testing.T) {
	AdminActionsTotal.Reset()

	RecordAdminAction("grade_adjusted", "success")
	RecordAdminAction("grade_adjusted", "rejected")

	if got := testutil.ToFloat64(AdminActionsTotal.WithLabelValues("grade_adjusted", "success")); got != 1 {
		t.Errorf("Expected success count = 1, got %f", got)
	}
}

func TestRecordEventPublished(t *testing.T) {
	EventsPublishedTotal.Reset()

	RecordEventPublished("grade_changed", "success")
	RecordEventPublished("grade_changed", "failure")
	RecordEventPublished("grade_changed", "failure")

	if got := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("grade_changed", "failure")); got != 2 {
		t.Errorf("Expected failure count = 2, got %f", got)
	}
}

func TestReconcileMetrics(t *testing.T) {
	ReconcileRunsTotal.Reset()

	RecordReconcileRun("success")
	SetReconcileLastRun()
	ObserveReconcileDuration(12.5)

	if got := testutil.ToFloat64(ReconcileRunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected success runs = 1, got %f", got)
	}
	if got := testutil.ToFloat64(ReconcileLastRunTimestamp); got <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", got)
	}
}

func TestHistogramsCollect(t *testing.T) {
	ObserveLockWait(0.002)
	RecordContribution(false, 1200)
	ObserveHTTPRequest("GET", "/api/v1/consumers/:id/status", "200", 0.01)

	for name, c := range map[string]prometheus.Collector{
		"lock wait":    LockWaitSeconds,
		"weight":       ContributionWeightGrams,
		"reconcile":    ReconcileDurationSeconds,
		"http latency": HTTPRequestDurationSeconds,
	} {
		if n := testutil.CollectAndCount(c); n == 0 {
			t.Errorf("Expected %s histogram to collect samples", name)
		}
	}
}
