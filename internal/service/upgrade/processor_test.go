package upgrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/events"
	"github.com/aimd54/hero-rewards/internal/lock"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/internal/service/badges"
	"github.com/aimd54/hero-rewards/internal/service/benefits"
	"github.com/aimd54/hero-rewards/pkg/logger"
	"github.com/aimd54/hero-rewards/test/testdb"
)

var silver1 = models.Level{Grade: models.GradeSilver, Tier: 1}

type fakeAlerter struct {
	mu        sync.Mutex
	configs   []string
	overrides []string
}

func (f *fakeAlerter) SendConfigurationAlert(_ context.Context, _ uint, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, message)
	return nil
}

func (f *fakeAlerter) SendGradeOverrideNotice(_ context.Context, consumerID string, _, to models.Level, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, consumerID+":"+to.String())
	return nil
}

type timeoutLocker struct{}

func (timeoutLocker) Lock(context.Context, string) (func(), error) {
	return nil, lock.ErrTimeout
}

type fixture struct {
	proc      *Processor
	db        *repository.DB
	recorder  *events.Recorder
	alerter   *fakeAlerter
	consumers *repository.ConsumerRepository
	logs      *repository.UpgradeLogRepository
	badges    *repository.BadgeRepository
}

func setup(t *testing.T, locker lock.Locker) *fixture {
	t.Helper()

	db := testdb.New(t)
	log := logger.NewNop()
	auditLogger := audit.NewLogger(repository.NewAuditRepository(db), log)
	resolver := benefits.NewResolver([]models.BenefitDefinition{
		{ID: "free_delivery", MinTierRequired: 2, Title: "Free delivery"},
		{ID: "vip_support", MinTierRequired: 3, Title: "VIP support"},
	})
	recorder := &events.Recorder{}
	alerter := &fakeAlerter{}
	if locker == nil {
		locker = lock.NewLocal(5 * time.Second)
	}

	proc := NewProcessor(
		db,
		locker,
		badges.NewService(db, auditLogger, log),
		resolver,
		auditLogger,
		recorder,
		alerter,
		log,
	)

	testdb.SeedBadge(t, db, "silver_reached", models.MilestoneRule{Kind: models.MilestoneLevel, Grade: models.GradeSilver, Tier: 1})
	testdb.SeedBadge(t, db, "gold_reached", models.MilestoneRule{Kind: models.MilestoneLevel, Grade: models.GradeGold, Tier: 1})

	return &fixture{
		proc:      proc,
		db:        db,
		recorder:  recorder,
		alerter:   alerter,
		consumers: repository.NewConsumerRepository(db),
		logs:      repository.NewUpgradeLogRepository(db),
		badges:    repository.NewBadgeRepository(db),
	}
}

func TestProcessAutomaticTransition_PromotesOnThreshold(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	table := testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, models.LowestLevel, tr.From)
	assert.Equal(t, silver1, tr.To)
	assert.Equal(t, models.TriggerAutomatic, tr.Trigger)
	assert.Equal(t, table.Version, tr.GradeTableVersion)
	assert.Equal(t, 1, tr.FromTierRank)
	assert.Equal(t, 2, tr.ToTierRank)
	require.Len(t, tr.BadgesAwarded, 1)
	assert.Equal(t, "silver_reached", tr.BadgesAwarded[0].BadgeType)
	require.Len(t, tr.BenefitsUnlocked, 1)
	assert.Equal(t, "free_delivery", tr.BenefitsUnlocked[0].ID)

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, silver1, profile.Level())
	assert.False(t, profile.GradeOverridden)

	logs, err := f.logs.ListByConsumer(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.TriggerAutomatic, logs[0].Trigger)
	assert.Nil(t, logs[0].Reason)
	assert.Equal(t, tr.LogID, logs[0].ID)

	assert.Len(t, f.recorder.OfType(events.TypeGradeChanged), 1)
	assert.Len(t, f.recorder.OfType(events.TypeBadgeAwarded), 1)
	unlocked := f.recorder.OfType(events.TypeBenefitsUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, []string{"free_delivery"}, unlocked[0].Payload.(events.BenefitsUnlocked).BenefitIDs)
}

func TestProcessAutomaticTransition_NoChangeBelowNextThreshold(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 4800)

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, tr)

	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.recorder.Events())
}

func TestProcessAutomaticTransition_Idempotent(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	first, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, second)

	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProcessAutomaticTransition_NeverDowngrades(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.Level{Grade: models.GradeGold, Tier: 1}, 5200)

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, tr)

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeGold, profile.Grade)
}

func TestProcessAutomaticTransition_UnknownConsumer(t *testing.T) {
	f := setup(t, nil)
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())

	_, err := f.proc.ProcessAutomaticTransition(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProcessAutomaticTransition_RequiresConsumerID(t *testing.T) {
	f := setup(t, nil)

	_, err := f.proc.ProcessAutomaticTransition(context.Background(), " ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProcessAutomaticTransition_MisconfiguredTableHoldsLevel(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	// Tied thresholds cannot be activated through the service, so write them directly
	testdb.SeedGradeTable(t, f.db, []models.GradeThreshold{
		{Grade: models.GradeBronze, Tier: 1, MinCumulativeWeightG: 0},
		{Grade: models.GradeSilver, Tier: 1, MinCumulativeWeightG: 5000},
		{Grade: models.GradeGold, Tier: 1, MinCumulativeWeightG: 5000},
	})
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)
	testdb.SeedConsumer(t, f.db, "c-2", models.LowestLevel, 5100)

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, tr)

	_, err = f.proc.ProcessAutomaticTransition(ctx, "c-2")
	require.NoError(t, err)

	assert.Len(t, f.alerter.configs, 1, "one alert per table version")

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.LowestLevel, profile.Level())
	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Once corrected, the pending promotion goes through
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	tr, err = f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, silver1, tr.To)
}

func TestProcessAutomaticTransition_NoActiveTable(t *testing.T) {
	f := setup(t, nil)
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 999999)

	tr, err := f.proc.ProcessAutomaticTransition(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Len(t, f.alerter.configs, 1)
}

func TestProcessAutomaticTransition_RollsBackOnFailure(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	testdb.FailCreates(t, f.db, "upgrade_logs", "disk full")

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.True(t, apperrors.IsStorage(err))

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.LowestLevel, profile.Level(), "level update must roll back with the log")

	earned, err := f.badges.GetUserBadges(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, earned)
	assert.Empty(t, f.recorder.Events())
}

func TestProcessAutomaticTransition_ConcurrentCallsCommitOnce(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 25000)

	const workers = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
			assert.NoError(t, err)
			if tr != nil {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProcessAutomaticTransition_LockTimeout(t *testing.T) {
	f := setup(t, timeoutLocker{})
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	_, err := f.proc.ProcessAutomaticTransition(context.Background(), "c-1")
	var conflict *apperrors.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "c-1", conflict.ConsumerID)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestProcessAdminOverride_ThenAutomaticDoesNotDowngrade(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", silver1, 5100)

	_, err := f.badges.Award(ctx, "c-1", "silver_reached", time.Now())
	require.NoError(t, err)

	tr, err := f.proc.ProcessAdminOverride(ctx, AdminOverrideRequest{
		ConsumerID: "c-1",
		Grade:      models.GradeGold,
		Tier:       1,
		Reason:     "VIP goodwill",
		ActorID:    "admin-7",
	})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.TriggerAdmin, tr.Trigger)
	assert.Equal(t, "VIP goodwill", tr.Reason)
	require.Len(t, tr.BadgesAwarded, 1)
	assert.Equal(t, "gold_reached", tr.BadgesAwarded[0].BadgeType)

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeGold, profile.Grade)
	assert.True(t, profile.GradeOverridden)

	logs, err := f.logs.ListByConsumer(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.TriggerAdmin, logs[0].Trigger)
	require.NotNil(t, logs[0].Reason)
	assert.Equal(t, "VIP goodwill", *logs[0].Reason)

	entries, err := repository.NewAuditRepository(f.db).List(ctx, models.AuditTargetConsumer, "c-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionGradeAdjusted, entries[0].Action)
	assert.Equal(t, "admin-7", entries[0].ActorID)
	assert.Equal(t, []string{"c-1:gold/1"}, f.alerter.overrides)

	// 100g more is still below gold, the override must hold
	require.NoError(t, f.consumers.AddCumulative(ctx, "c-1", 100, 0))
	auto, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, auto)

	profile, err = f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeGold, profile.Grade)

	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProcessAdminOverride_Downgrade(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", silver1, 5100)
	_, err := f.badges.Award(ctx, "c-1", "silver_reached", time.Now())
	require.NoError(t, err)

	tr, err := f.proc.ProcessAdminOverride(ctx, AdminOverrideRequest{
		ConsumerID: "c-1", Grade: models.GradeBronze, Tier: 1, Reason: "fraud review", ActorID: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LowestLevel, tr.To)
	assert.Empty(t, tr.BenefitsUnlocked)

	earned, err := f.badges.GetUserBadges(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, earned, 1, "badges are never revoked")
}

func TestReconcileTransition_KeepsAdminLevel(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", silver1, 5100)

	_, err := f.proc.ProcessAdminOverride(ctx, AdminOverrideRequest{
		ConsumerID: "c-1", Grade: models.GradeBronze, Tier: 1, Reason: "fraud review", ActorID: "admin-1",
	})
	require.NoError(t, err)

	tr, err := f.proc.ReconcileTransition(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, tr)

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.LowestLevel, profile.Level())
	assert.True(t, profile.GradeOverridden)

	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// New activity is a fresh automatic trigger and promotes again
	require.NoError(t, f.consumers.AddCumulative(ctx, "c-1", 100, 0))
	tr, err = f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, silver1, tr.To)

	profile, err = f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, profile.GradeOverridden)
}

func TestReconcileTransition_PromotesWithoutOverride(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	tr, err := f.proc.ReconcileTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.TriggerAutomatic, tr.Trigger)
	assert.Equal(t, silver1, tr.To)
}

func TestProcessAdminOverride_Rejected(t *testing.T) {
	valid := AdminOverrideRequest{ConsumerID: "c-1", Grade: models.GradeGold, Tier: 1, Reason: "goodwill", ActorID: "admin-1"}

	tests := []struct {
		name     string
		mutate   func(r *AdminOverrideRequest)
		notFound bool
	}{
		{name: "missing reason", mutate: func(r *AdminOverrideRequest) { r.Reason = "  " }},
		{name: "missing actor", mutate: func(r *AdminOverrideRequest) { r.ActorID = "" }},
		{name: "unknown grade", mutate: func(r *AdminOverrideRequest) { r.Grade = "mythril" }},
		{name: "zero tier", mutate: func(r *AdminOverrideRequest) { r.Tier = 0 }},
		{name: "level not in table", mutate: func(r *AdminOverrideRequest) { r.Grade = models.GradeDiamond }},
		{name: "same level", mutate: func(r *AdminOverrideRequest) { r.Grade = models.GradeSilver }},
		{name: "unknown consumer", mutate: func(r *AdminOverrideRequest) { r.ConsumerID = "ghost" }, notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, nil)
			ctx := context.Background()
			testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
			testdb.SeedConsumer(t, f.db, "c-1", silver1, 5100)

			req := valid
			tt.mutate(&req)
			tr, err := f.proc.ProcessAdminOverride(ctx, req)
			assert.Nil(t, tr)
			if tt.notFound {
				assert.True(t, apperrors.IsNotFound(err), "got %v", err)
			} else {
				assert.True(t, apperrors.IsValidation(err), "got %v", err)
			}

			profile, err := f.consumers.GetByID(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, silver1, profile.Level())

			entries, err := repository.NewAuditRepository(f.db).List(ctx, "", "", 10)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, f.recorder.Events())
		})
	}
}

func TestProcessAdminOverride_AuditFailureRollsBack(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", silver1, 5100)
	testdb.FailCreates(t, f.db, "audit_logs", "disk full")

	tr, err := f.proc.ProcessAdminOverride(ctx, AdminOverrideRequest{
		ConsumerID: "c-1", Grade: models.GradeGold, Tier: 1, Reason: "VIP goodwill", ActorID: "admin-1",
	})
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.True(t, apperrors.IsStorage(err))

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, silver1, profile.Level(), "level change must roll back with the audit entry")
	assert.False(t, profile.GradeOverridden)

	count, err := f.logs.CountByConsumer(ctx, "c-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	earned, err := f.badges.GetUserBadges(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, earned)
	assert.Empty(t, f.recorder.Events())
	assert.Empty(t, f.alerter.overrides)
}

func TestProcessAdminOverride_NoActiveTable(t *testing.T) {
	f := setup(t, nil)
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 0)

	_, err := f.proc.ProcessAdminOverride(context.Background(), AdminOverrideRequest{
		ConsumerID: "c-1", Grade: models.GradeGold, Tier: 1, Reason: "goodwill", ActorID: "admin-1",
	})
	assert.True(t, apperrors.IsValidation(err))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func TestProcessAutomaticTransition_PublishFailureKeepsCommit(t *testing.T) {
	f := setup(t, nil)
	f.proc.publisher = failingPublisher{}
	ctx := context.Background()
	testdb.SeedGradeTable(t, f.db, testdb.ScenarioThresholds())
	testdb.SeedConsumer(t, f.db, "c-1", models.LowestLevel, 5100)

	tr, err := f.proc.ProcessAutomaticTransition(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, tr)

	profile, err := f.consumers.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, silver1, profile.Level())
}
