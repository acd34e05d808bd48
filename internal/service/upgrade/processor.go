// Package upgrade commits level transitions: automatic promotions driven by
// cumulative saved weight and admin overrides. Both paths share one commit
// routine so history stays consistent.
package upgrade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/events"
	"github.com/aimd54/hero-rewards/internal/lock"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/internal/service/badges"
	"github.com/aimd54/hero-rewards/internal/service/grading"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

const publishTimeout = 2 * time.Second

// Transactor runs a unit of work in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, op string, fn func(tx *repository.Tx) error) error
}

// BadgeIssuer awards milestone badges inside the transition's transaction.
type BadgeIssuer interface {
	EvaluateAndAward(ctx context.Context, store badges.AwardStore, consumerID string, level models.Level) ([]models.Badge, error)
	RecordAwards(ctx context.Context, consumerID string, awarded []models.Badge)
}

// BenefitResolver reports benefits unlocked between two tier ranks.
type BenefitResolver interface {
	Unlocked(fromRank, toRank int) []models.BenefitDefinition
}

// AuditLogger appends audit entries through a transaction-bound writer.
type AuditLogger interface {
	Append(ctx context.Context, w audit.Appender, entry audit.Entry) error
}

// Alerter notifies admins out of band.
type Alerter interface {
	SendConfigurationAlert(ctx context.Context, version uint, message string) error
	SendGradeOverrideNotice(ctx context.Context, consumerID string, from, to models.Level, actorID, reason string) error
}

// Transition describes a committed level change.
type Transition struct {
	ConsumerID        string                     `json:"consumer_id"`
	From              models.Level               `json:"from"`
	To                models.Level               `json:"to"`
	Trigger           models.UpgradeTrigger      `json:"trigger"`
	Reason            string                     `json:"reason,omitempty"`
	GradeTableVersion uint                       `json:"grade_table_version"`
	FromTierRank      int                        `json:"from_tier_rank"`
	ToTierRank        int                        `json:"to_tier_rank"`
	BadgesAwarded     []models.Badge             `json:"badges_awarded"`
	BenefitsUnlocked  []models.BenefitDefinition `json:"benefits_unlocked"`
	LogID             uint                       `json:"upgrade_log_id"`
}

// AdminOverrideRequest sets a consumer's level manually.
type AdminOverrideRequest struct {
	ConsumerID string
	Grade      models.Grade
	Tier       int
	Reason     string
	ActorID    string
}

// Level returns the requested level.
func (r AdminOverrideRequest) Level() models.Level {
	return models.Level{Grade: r.Grade, Tier: r.Tier}
}

// Processor serialises and commits level transitions per consumer.
type Processor struct {
	db        Transactor
	locker    lock.Locker
	badges    BadgeIssuer
	benefits  BenefitResolver
	audit     AuditLogger
	publisher events.Publisher
	alerter   Alerter
	log       *logger.Logger

	alertMu      sync.Mutex
	alertedTable map[uint]string
}

// NewProcessor creates an upgrade processor. publisher and alerter may be nil.
func NewProcessor(
	db Transactor,
	locker lock.Locker,
	badgeIssuer BadgeIssuer,
	benefitResolver BenefitResolver,
	auditLogger AuditLogger,
	publisher events.Publisher,
	alerter Alerter,
	log *logger.Logger,
) *Processor {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Processor{
		db:           db,
		locker:       locker,
		badges:       badgeIssuer,
		benefits:     benefitResolver,
		audit:        auditLogger,
		publisher:    publisher,
		alerter:      alerter,
		log:          log,
		alertedTable: make(map[uint]string),
	}
}

// ProcessAutomaticTransition promotes the consumer to the level their
// cumulative saved weight qualifies for. It never lowers a level, so an
// admin override above the computed target is left alone. While the active
// table is inconsistent no one is promoted. A nil Transition means nothing
// changed.
func (p *Processor) ProcessAutomaticTransition(ctx context.Context, consumerID string) (*Transition, error) {
	return p.processAutomatic(ctx, consumerID, false)
}

// ReconcileTransition is ProcessAutomaticTransition for sweeps that are not
// driven by new activity. A level set by an admin is left untouched, so a
// manual downgrade survives until the consumer's next contribution.
func (p *Processor) ReconcileTransition(ctx context.Context, consumerID string) (*Transition, error) {
	return p.processAutomatic(ctx, consumerID, true)
}

func (p *Processor) processAutomatic(ctx context.Context, consumerID string, keepOverride bool) (*Transition, error) {
	if strings.TrimSpace(consumerID) == "" {
		return nil, apperrors.Validation("consumer_id", "is required")
	}

	release, err := p.acquire(ctx, consumerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		transition *Transition
		cfgErr     *apperrors.ConfigurationError
	)
	err = p.db.Transaction(ctx, "automatic transition", func(tx *repository.Tx) error {
		profile, err := tx.Consumers.GetForUpdate(ctx, consumerID)
		if err != nil {
			return err
		}
		if keepOverride && profile.GradeOverridden {
			return nil
		}

		table, err := activeTableOrEmpty(ctx, tx)
		if err != nil {
			return err
		}

		target, err := grading.ComputeForTable(profile.CumulativeSavedWeightG, table)
		if err != nil {
			if !errors.As(err, &cfgErr) {
				return err
			}
			// An inconsistent table resolves to its lowest level, which
			// never promotes anyone, until admins correct it.
			target = table.Lowest()
		}

		if target.Compare(profile.Level()) <= 0 {
			return nil
		}

		transition, err = p.commit(ctx, tx, profile, target, table, models.TriggerAutomatic, "")
		return err
	})

	if cfgErr != nil {
		p.reportConfigurationError(ctx, consumerID, cfgErr)
	}
	if err != nil {
		p.log.Error().Err(err).Str("consumer_id", consumerID).Msg("Automatic transition failed")
		return nil, err
	}
	if transition != nil {
		p.afterCommit(ctx, transition)
	}
	return transition, nil
}

// ProcessAdminOverride sets the consumer to the requested level, up or down.
// The level must exist in the active grade table. The profile change, its
// upgrade log, any badges and the audit entry commit together.
func (p *Processor) ProcessAdminOverride(ctx context.Context, req AdminOverrideRequest) (*Transition, error) {
	if err := validateOverride(req); err != nil {
		prommetrics.RecordAdminAction(models.AuditActionGradeAdjusted, "rejected")
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	target := req.Level()

	release, err := p.acquire(ctx, req.ConsumerID)
	if err != nil {
		prommetrics.RecordAdminAction(models.AuditActionGradeAdjusted, "failed")
		return nil, err
	}
	defer release()

	var transition *Transition
	err = p.db.Transaction(ctx, "admin override", func(tx *repository.Tx) error {
		profile, err := tx.Consumers.GetForUpdate(ctx, req.ConsumerID)
		if err != nil {
			return err
		}

		table, err := tx.GradeTables.GetActive(ctx)
		if apperrors.IsNotFound(err) {
			return apperrors.Validation("grade", "no active grade table to adjust against")
		}
		if err != nil {
			return err
		}
		if !table.Contains(target) {
			return apperrors.Validation("grade", "level %s is not defined in grade table v%d", target, table.Version)
		}
		if target == profile.Level() {
			return apperrors.Validation("grade", "consumer is already at %s", target)
		}

		transition, err = p.commit(ctx, tx, profile, target, table, models.TriggerAdmin, reason)
		if err != nil {
			return err
		}

		return p.audit.Append(ctx, tx.Audit, audit.Entry{
			ActorID:    req.ActorID,
			Action:     models.AuditActionGradeAdjusted,
			TargetType: models.AuditTargetConsumer,
			TargetID:   req.ConsumerID,
			Before:     transition.From,
			After:      transition.To,
			Reason:     reason,
		})
	})
	if err != nil {
		status := "failed"
		if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
			status = "rejected"
		}
		prommetrics.RecordAdminAction(models.AuditActionGradeAdjusted, status)
		p.log.Warn().
			Err(err).
			Str("consumer_id", req.ConsumerID).
			Str("actor_id", req.ActorID).
			Msg("Admin override not applied")
		return nil, err
	}

	prommetrics.RecordAdminAction(models.AuditActionGradeAdjusted, "success")
	p.log.Info().
		Str("consumer_id", req.ConsumerID).
		Str("actor_id", req.ActorID).
		Str("from", transition.From.String()).
		Str("to", transition.To.String()).
		Msg("Admin override applied")

	p.afterCommit(ctx, transition)
	if p.alerter != nil {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := p.alerter.SendGradeOverrideNotice(notifyCtx, req.ConsumerID, transition.From, transition.To, req.ActorID, reason); err != nil {
			p.log.Warn().Err(err).Str("consumer_id", req.ConsumerID).Msg("Failed to send override notice")
		}
	}
	return transition, nil
}

// commit writes the profile, then the upgrade log, then any badges, all through tx.
func (p *Processor) commit(
	ctx context.Context,
	tx *repository.Tx,
	profile *models.ConsumerProfile,
	target models.Level,
	table *models.GradeTable,
	trigger models.UpgradeTrigger,
	reason string,
) (*Transition, error) {
	from := profile.Level()
	overridden := trigger == models.TriggerAdmin

	if err := tx.Consumers.UpdateLevel(ctx, profile.ID, target, overridden); err != nil {
		return nil, err
	}

	entry := &models.UpgradeLog{
		ConsumerID:        profile.ID,
		FromGrade:         from.Grade,
		FromTier:          from.Tier,
		ToGrade:           target.Grade,
		ToTier:            target.Tier,
		Trigger:           trigger,
		GradeTableVersion: table.Version,
		CreatedAt:         time.Now().UTC(),
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if err := tx.UpgradeLogs.Create(ctx, entry); err != nil {
		return nil, err
	}

	awarded, err := p.badges.EvaluateAndAward(ctx, tx.Badges, profile.ID, target)
	if err != nil {
		return nil, err
	}

	fromRank, toRank := table.TierRank(from), table.TierRank(target)
	return &Transition{
		ConsumerID:        profile.ID,
		From:              from,
		To:                target,
		Trigger:           trigger,
		Reason:            reason,
		GradeTableVersion: table.Version,
		FromTierRank:      fromRank,
		ToTierRank:        toRank,
		BadgesAwarded:     awarded,
		BenefitsUnlocked:  p.benefits.Unlocked(fromRank, toRank),
		LogID:             entry.ID,
	}, nil
}

// afterCommit records metrics and publishes change events. Failures here are
// logged and counted; the transition stays committed.
func (p *Processor) afterCommit(ctx context.Context, t *Transition) {
	prommetrics.RecordGradeTransition(string(t.Trigger), string(t.To.Grade))
	p.badges.RecordAwards(ctx, t.ConsumerID, t.BadgesAwarded)

	p.log.Info().
		Str("consumer_id", t.ConsumerID).
		Str("trigger", string(t.Trigger)).
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Int("badges_awarded", len(t.BadgesAwarded)).
		Int("benefits_unlocked", len(t.BenefitsUnlocked)).
		Msg("Grade transition committed")

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.publish(pubCtx, events.New(events.TypeGradeChanged, t.ConsumerID, events.GradeChanged{
		From:    t.From,
		To:      t.To,
		Trigger: t.Trigger,
		Reason:  t.Reason,
	}))
	for _, b := range t.BadgesAwarded {
		p.publish(pubCtx, events.New(events.TypeBadgeAwarded, t.ConsumerID, events.BadgeAwarded{
			BadgeType: b.BadgeType,
			Name:      b.Name,
			Emoji:     b.Emoji,
		}))
	}
	if len(t.BenefitsUnlocked) > 0 {
		ids := make([]string, 0, len(t.BenefitsUnlocked))
		for _, b := range t.BenefitsUnlocked {
			ids = append(ids, b.ID)
		}
		p.publish(pubCtx, events.New(events.TypeBenefitsUnlocked, t.ConsumerID, events.BenefitsUnlocked{BenefitIDs: ids}))
	}
}

func (p *Processor) publish(ctx context.Context, ev events.Event) {
	if err := p.publisher.Publish(ctx, ev); err != nil {
		prommetrics.RecordEventPublished(string(ev.Type), "failure")
		p.log.Warn().
			Err(err).
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Str("consumer_id", ev.ConsumerID).
			Msg("Failed to publish event")
		return
	}
	prommetrics.RecordEventPublished(string(ev.Type), "success")
}

// acquire takes the per-consumer lock, mapping a wait timeout to ConcurrencyConflictError.
func (p *Processor) acquire(ctx context.Context, consumerID string) (func(), error) {
	start := time.Now()
	release, err := p.locker.Lock(ctx, consumerID)
	prommetrics.ObserveLockWait(time.Since(start).Seconds())

	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, lock.ErrTimeout):
		prommetrics.RecordConcurrencyConflict()
		p.log.Warn().Str("consumer_id", consumerID).Msg("Timed out waiting for consumer lock")
		return nil, &apperrors.ConcurrencyConflictError{ConsumerID: consumerID}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, apperrors.Storage("acquire consumer lock", err)
	}
}

// reportConfigurationError logs every occurrence and alerts admins once per table version and problem.
func (p *Processor) reportConfigurationError(ctx context.Context, consumerID string, cfgErr *apperrors.ConfigurationError) {
	prommetrics.RecordConfigurationError()
	p.log.Error().
		Err(cfgErr).
		Uint("grade_table_version", cfgErr.Version).
		Str("consumer_id", consumerID).
		Msg("Grade table misconfigured, holding consumer at current level")

	if p.alerter == nil {
		return
	}

	p.alertMu.Lock()
	alreadySent := p.alertedTable[cfgErr.Version] == cfgErr.Message
	p.alertedTable[cfgErr.Version] = cfgErr.Message
	p.alertMu.Unlock()
	if alreadySent {
		return
	}

	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.alerter.SendConfigurationAlert(alertCtx, cfgErr.Version, cfgErr.Message); err != nil {
		p.log.Warn().Err(err).Msg("Failed to send configuration alert")
	}
}

func activeTableOrEmpty(ctx context.Context, tx *repository.Tx) (*models.GradeTable, error) {
	table, err := tx.GradeTables.GetActive(ctx)
	if apperrors.IsNotFound(err) {
		return &models.GradeTable{}, nil
	}
	return table, err
}

func validateOverride(req AdminOverrideRequest) error {
	switch {
	case strings.TrimSpace(req.ConsumerID) == "":
		return apperrors.Validation("consumer_id", "is required")
	case strings.TrimSpace(req.ActorID) == "":
		return apperrors.Validation("actor_id", "is required")
	case strings.TrimSpace(req.Reason) == "":
		return apperrors.Validation("reason", "is required for a manual adjustment")
	case !req.Grade.Valid():
		return apperrors.Validation("grade", "unknown grade %q", req.Grade)
	case req.Tier < 1:
		return apperrors.Validation("tier", "must be >= 1, got %d", req.Tier)
	}
	return nil
}
