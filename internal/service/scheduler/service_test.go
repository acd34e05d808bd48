package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/config"
	"github.com/aimd54/hero-rewards/internal/lock"
	"github.com/aimd54/hero-rewards/internal/mattermost"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/internal/service/badges"
	"github.com/aimd54/hero-rewards/internal/service/benefits"
	"github.com/aimd54/hero-rewards/internal/service/contributions"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
	"github.com/aimd54/hero-rewards/test/testdb"
)

type mockConsumerLister struct {
	ids   []string
	calls int
	err   error
}

func (m *mockConsumerLister) ListIDsAfter(_ context.Context, afterID string, limit int) ([]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	sorted := append([]string(nil), m.ids...)
	sort.Strings(sorted)

	var out []string
	for _, id := range sorted {
		if id > afterID {
			out = append(out, id)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockProcessor struct {
	promote map[string]bool
	fail    map[string]error
	seen    []string
}

func (m *mockProcessor) ReconcileTransition(_ context.Context, consumerID string) (*upgrade.Transition, error) {
	m.seen = append(m.seen, consumerID)
	if err := m.fail[consumerID]; err != nil {
		return nil, err
	}
	if m.promote[consumerID] {
		return &upgrade.Transition{ConsumerID: consumerID, To: models.Level{Grade: models.GradeSilver, Tier: 1}}, nil
	}
	return nil, nil
}

type mockTotalsChecker struct {
	drifted map[string]bool
}

func (m *mockTotalsChecker) CheckTotals(_ context.Context, consumerID string) (*contributions.TotalsDrift, error) {
	if m.drifted[consumerID] {
		return &contributions.TotalsDrift{ConsumerID: consumerID, ProfileWeight: 500}, nil
	}
	return nil, nil
}

type mockGauges struct {
	calls int
}

func (m *mockGauges) RefreshHolderGauges(context.Context) error {
	m.calls++
	return nil
}

func TestReconcile(t *testing.T) {
	lister := &mockConsumerLister{ids: []string{"c-5", "c-1", "c-3", "c-2", "c-4"}}
	proc := &mockProcessor{
		promote: map[string]bool{"c-2": true, "c-4": true},
		fail:    map[string]error{"c-3": &apperrors.ConcurrencyConflictError{ConsumerID: "c-3"}},
	}
	totals := &mockTotalsChecker{drifted: map[string]bool{"c-1": true}}
	gauges := &mockGauges{}

	s := NewService(&config.SchedulerConfig{BatchSize: 2}, lister, proc, totals, gauges, logger.NewNop())

	report, err := s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if report.Processed != 5 {
		t.Errorf("Processed = %d, want 5", report.Processed)
	}
	if report.Transitions != 2 {
		t.Errorf("Transitions = %d, want 2", report.Transitions)
	}
	if report.Failures != 1 {
		t.Errorf("Failures = %d, want 1", report.Failures)
	}
	if report.Drifts != 1 {
		t.Errorf("Drifts = %d, want 1", report.Drifts)
	}
	// Pages of 2, 2 and 1
	if lister.calls != 3 {
		t.Errorf("ListIDsAfter called %d times, want 3", lister.calls)
	}
	want := []string{"c-1", "c-2", "c-3", "c-4", "c-5"}
	for i, id := range want {
		if proc.seen[i] != id {
			t.Errorf("consumer %d = %s, want %s", i, proc.seen[i], id)
		}
	}
	if gauges.calls != 1 {
		t.Errorf("RefreshHolderGauges called %d times, want 1", gauges.calls)
	}
}

func TestReconcile_ExactPageBoundary(t *testing.T) {
	lister := &mockConsumerLister{ids: []string{"a", "b"}}
	proc := &mockProcessor{}

	s := NewService(&config.SchedulerConfig{BatchSize: 2}, lister, proc, nil, nil, logger.NewNop())

	report, err := s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2", report.Processed)
	}
	// A full page needs one more, empty, page to know it was the last
	if lister.calls != 2 {
		t.Errorf("ListIDsAfter called %d times, want 2", lister.calls)
	}
}

func TestReconcile_ListFailureAborts(t *testing.T) {
	lister := &mockConsumerLister{err: apperrors.Storage("list consumer ids", errors.New("connection reset"))}

	s := NewService(&config.SchedulerConfig{}, lister, &mockProcessor{}, nil, nil, logger.NewNop())

	_, err := s.Reconcile(context.Background())
	if !apperrors.IsStorage(err) {
		t.Errorf("Reconcile() error = %v, want StorageError", err)
	}
}

func TestReconcile_CancelledContext(t *testing.T) {
	lister := &mockConsumerLister{ids: []string{"a"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewService(&config.SchedulerConfig{}, lister, &mockProcessor{}, nil, nil, logger.NewNop())

	_, err := s.Reconcile(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Reconcile() error = %v, want context.Canceled", err)
	}
	if lister.calls != 0 {
		t.Errorf("ListIDsAfter called %d times, want 0", lister.calls)
	}
}

func TestStart(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SchedulerConfig
		wantErr bool
	}{
		{
			name: "disabled",
			cfg:  config.SchedulerConfig{Enabled: false, ReconcileSchedule: "not a schedule"},
		},
		{
			name: "valid schedule",
			cfg:  config.SchedulerConfig{Enabled: true, ReconcileSchedule: "0 3 * * *", Timezone: "Europe/Paris"},
		},
		{
			name:    "invalid timezone",
			cfg:     config.SchedulerConfig{Enabled: true, ReconcileSchedule: "0 3 * * *", Timezone: "Mars/Olympus"},
			wantErr: true,
		},
		{
			name:    "invalid schedule",
			cfg:     config.SchedulerConfig{Enabled: true, ReconcileSchedule: "every night", Timezone: "UTC"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			s := NewService(&cfg, &mockConsumerLister{}, &mockProcessor{}, nil, nil, logger.NewNop())

			err := s.Start()
			defer s.Stop()

			if (err != nil) != tt.wantErr {
				t.Errorf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunReconciliation_SkipsOverlappingRun(t *testing.T) {
	lister := &mockConsumerLister{ids: []string{"a"}}
	s := NewService(&config.SchedulerConfig{}, lister, &mockProcessor{}, nil, nil, logger.NewNop())

	s.running.Lock()
	s.runReconciliation(context.Background())
	s.running.Unlock()

	if lister.calls != 0 {
		t.Errorf("overlapping run listed consumers %d times, want 0", lister.calls)
	}
}

func TestReconcile_KeepsAdminDowngrade(t *testing.T) {
	db := testdb.New(t)
	log := logger.NewNop()
	ctx := context.Background()
	auditLogger := audit.NewLogger(repository.NewAuditRepository(db), log)
	proc := upgrade.NewProcessor(
		db,
		lock.NewLocal(time.Second),
		badges.NewService(db, auditLogger, log),
		benefits.NewResolver(nil),
		auditLogger,
		nil,
		mattermost.NewClient(&config.MattermostConfig{}, log),
		log,
	)

	testdb.SeedGradeTable(t, db, testdb.ScenarioThresholds())
	silver := models.Level{Grade: models.GradeSilver, Tier: 1}
	testdb.SeedConsumer(t, db, "c-1", silver, 5100)
	testdb.SeedConsumer(t, db, "c-2", models.LowestLevel, 5100)

	_, err := proc.ProcessAdminOverride(ctx, upgrade.AdminOverrideRequest{
		ConsumerID: "c-1", Grade: models.GradeBronze, Tier: 1, Reason: "fraud review", ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("ProcessAdminOverride() error = %v", err)
	}

	consumers := repository.NewConsumerRepository(db)
	s := NewService(&config.SchedulerConfig{}, consumers, proc, nil, nil, log)

	report, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2", report.Processed)
	}
	if report.Transitions != 1 {
		t.Errorf("Transitions = %d, want 1 (only c-2)", report.Transitions)
	}

	profile, err := consumers.GetByID(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if profile.Level() != models.LowestLevel || !profile.GradeOverridden {
		t.Errorf("c-1 = %s overridden=%v, want %s overridden=true", profile.Level(), profile.GradeOverridden, models.LowestLevel)
	}

	promoted, err := consumers.GetByID(ctx, "c-2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if promoted.Level() != silver {
		t.Errorf("c-2 = %s, want %s", promoted.Level(), silver)
	}

	count, err := repository.NewUpgradeLogRepository(db).CountByConsumer(ctx, "c-1")
	if err != nil {
		t.Fatalf("CountByConsumer() error = %v", err)
	}
	if count != 1 {
		t.Errorf("c-1 upgrade logs = %d, want 1", count)
	}
}
