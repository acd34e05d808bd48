// Package scheduler runs the periodic reconciliation sweep: every consumer
// whose level was not set by an admin is re-evaluated for an automatic
// transition, and every consumer's totals are checked against the
// contribution ledger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/config"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/service/contributions"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

const defaultBatchSize = 500

// ConsumerLister pages through consumer IDs.
type ConsumerLister interface {
	ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
}

// TransitionProcessor re-runs automatic level transitions without
// overwriting levels set by an admin.
type TransitionProcessor interface {
	ReconcileTransition(ctx context.Context, consumerID string) (*upgrade.Transition, error)
}

// TotalsChecker compares profile totals with the ledger.
type TotalsChecker interface {
	CheckTotals(ctx context.Context, consumerID string) (*contributions.TotalsDrift, error)
}

// GaugeRefresher recomputes gauges derived from stored state.
type GaugeRefresher interface {
	RefreshHolderGauges(ctx context.Context) error
}

// Report summarises one reconciliation sweep.
type Report struct {
	Processed   int
	Transitions int
	Drifts      int
	Failures    int
}

// Service schedules reconciliation sweeps.
type Service struct {
	config    *config.SchedulerConfig
	consumers ConsumerLister
	processor TransitionProcessor
	totals    TotalsChecker
	gauges    GaugeRefresher
	log       *logger.Logger
	cron      *cron.Cron

	running sync.Mutex
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.SchedulerConfig,
	consumers ConsumerLister,
	processor TransitionProcessor,
	totals TotalsChecker,
	gauges GaugeRefresher,
	log *logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		consumers: consumers,
		processor: processor,
		totals:    totals,
		gauges:    gauges,
		log:       log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.config.ReconcileSchedule, func() {
		s.runReconciliation(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register reconciliation job: %w", err)
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.config.ReconcileSchedule).
		Str("timezone", s.config.Timezone).
		Int("batch_size", s.batchSize()).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running sweep.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

func (s *Service) batchSize() int {
	if s.config.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.config.BatchSize
}

// runReconciliation executes the scheduled job and records its metrics.
func (s *Service) runReconciliation(ctx context.Context) {
	if !s.running.TryLock() {
		s.log.Warn().Msg("Previous reconciliation still running, skipping this run")
		prommetrics.RecordReconcileRun("skipped")
		return
	}
	defer s.running.Unlock()

	start := time.Now()
	defer func() {
		prommetrics.ObserveReconcileDuration(time.Since(start).Seconds())
		prommetrics.SetReconcileLastRun()
	}()

	s.log.Info().Msg("Running reconciliation job")

	report, err := s.Reconcile(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Int("processed", report.Processed).
			Dur("duration", time.Since(start)).
			Msg("Reconciliation job failed")
		prommetrics.RecordReconcileRun("error")
		return
	}

	prommetrics.RecordReconcileRun("success")
	s.log.Info().
		Int("processed", report.Processed).
		Int("transitions", report.Transitions).
		Int("drifts", report.Drifts).
		Int("failures", report.Failures).
		Dur("duration", time.Since(start)).
		Msg("Reconciliation job completed successfully")
}

// Reconcile walks every consumer in ID order. Per-consumer failures are
// logged and counted; only a failure to list consumers aborts the sweep.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{}
	limit := s.batchSize()
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ids, err := s.consumers.ListIDsAfter(ctx, after, limit)
		if err != nil {
			return report, fmt.Errorf("failed to list consumers after %q: %w", after, err)
		}

		for _, id := range ids {
			s.reconcileOne(ctx, id, report)
		}
		prommetrics.AddReconcileConsumers(len(ids))

		if len(ids) < limit {
			break
		}
		after = ids[len(ids)-1]
	}

	if s.gauges != nil {
		if err := s.gauges.RefreshHolderGauges(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to refresh badge holder gauges")
		}
	}

	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, consumerID string, report *Report) {
	report.Processed++

	transition, err := s.processor.ReconcileTransition(ctx, consumerID)
	switch {
	case err == nil:
		if transition != nil {
			report.Transitions++
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	default:
		report.Failures++
		s.log.Warn().
			Err(err).
			Str("consumer_id", consumerID).
			Bool("retryable", apperrors.IsRetryable(err)).
			Msg("Reconciliation transition failed")
	}

	if s.totals == nil {
		return
	}
	drift, err := s.totals.CheckTotals(ctx, consumerID)
	if err != nil {
		report.Failures++
		s.log.Warn().Err(err).Str("consumer_id", consumerID).Msg("Failed to check contribution totals")
		return
	}
	if drift != nil {
		report.Drifts++
		s.log.Warn().
			Str("consumer_id", consumerID).
			Int64("profile_weight_g", drift.ProfileWeight).
			Int64("ledger_weight_g", drift.LedgerWeight).
			Int64("profile_co2_g", drift.ProfileCO2).
			Int64("ledger_co2_g", drift.LedgerCO2).
			Msg("Cumulative totals drifted from ledger")
	}
}
