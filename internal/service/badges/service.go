// Package badges provides badge evaluation and management services.
package badges

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// AwardStore is the subset of badge storage used while awarding.
// Callers pass the repository bound to their transaction.
type AwardStore interface {
	GetAll(ctx context.Context) ([]models.Badge, error)
	Award(ctx context.Context, consumerID, badgeType string, earnedAt time.Time) (bool, error)
}

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	AwardStore
	GetByType(ctx context.Context, badgeType string) (*models.Badge, error)
	Create(ctx context.Context, badge *models.Badge) error
	GetUserBadges(ctx context.Context, consumerID string) ([]models.UserBadge, error)
	GetBadgeHoldersCount(ctx context.Context, badgeType string) (int64, error)
}

// Transactor runs a unit of work in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, op string, fn func(tx *repository.Tx) error) error
}

// AuditLogger appends audit entries through a transaction-bound writer.
type AuditLogger interface {
	Append(ctx context.Context, w audit.Appender, entry audit.Entry) error
}

// Service handles badge evaluation and awarding.
type Service struct {
	badgeRepo BadgeRepository
	db        Transactor
	audit     AuditLogger
	log       *logger.Logger
}

// NewService creates a new badge service.
func NewService(db *repository.DB, auditLogger *audit.Logger, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: repository.NewBadgeRepository(db),
		db:        db,
		audit:     auditLogger,
		log:       log,
	}
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(badgeRepo BadgeRepository, db Transactor, auditLogger AuditLogger, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		db:        db,
		audit:     auditLogger,
		log:       log,
	}
}

// EvaluateAndAward awards every level badge whose milestone is at or below level.
// Only badges inserted by this call are returned; re-evaluating is a no-op.
// Badges are never revoked, so a later downgrade keeps them.
func (s *Service) EvaluateAndAward(ctx context.Context, store AwardStore, consumerID string, level models.Level) ([]models.Badge, error) {
	return s.award(ctx, store, consumerID, func(rule models.MilestoneRule) bool {
		return reachesLevel(rule, level)
	})
}

// AwardWelcomeBadges awards the badges granted at profile creation.
func (s *Service) AwardWelcomeBadges(ctx context.Context, store AwardStore, consumerID string) ([]models.Badge, error) {
	return s.award(ctx, store, consumerID, isWelcome)
}

func (s *Service) award(ctx context.Context, store AwardStore, consumerID string, qualifies func(models.MilestoneRule) bool) ([]models.Badge, error) {
	catalog, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get badges: %w", err)
	}

	now := time.Now().UTC()
	var newlyEarned []models.Badge
	for _, badge := range catalog {
		rule, err := badge.Rule()
		if err != nil {
			// A broken catalog entry must not block the transition.
			s.log.Error().
				Err(err).
				Str("badge_type", badge.BadgeType).
				Msg("Skipping badge with unreadable milestone rule")
			continue
		}
		if !qualifies(rule) {
			continue
		}

		inserted, err := store.Award(ctx, consumerID, badge.BadgeType, now)
		if err != nil {
			return nil, err
		}
		if inserted {
			newlyEarned = append(newlyEarned, badge)
		}
	}
	return newlyEarned, nil
}

// RecordAwards updates badge metrics once the awarding transaction has committed.
func (s *Service) RecordAwards(ctx context.Context, consumerID string, awarded []models.Badge) {
	for _, badge := range awarded {
		prommetrics.RecordBadgeAwarded(badge.BadgeType)

		if count, err := s.badgeRepo.GetBadgeHoldersCount(ctx, badge.BadgeType); err == nil {
			prommetrics.SetActiveBadgeHolders(badge.BadgeType, count)
		}

		s.log.Info().
			Str("consumer_id", consumerID).
			Str("badge_type", badge.BadgeType).
			Msg("Badge awarded")
	}
}

// UpsertBadge creates or edits a catalog badge. The change and its audit
// entry commit together.
func (s *Service) UpsertBadge(ctx context.Context, spec models.BadgeSpec, actorID, reason string) (*models.Badge, error) {
	if err := validateSpec(spec); err != nil {
		prommetrics.RecordAdminAction(models.AuditActionBadgeUpserted, "rejected")
		return nil, err
	}
	if strings.TrimSpace(actorID) == "" {
		prommetrics.RecordAdminAction(models.AuditActionBadgeUpserted, "rejected")
		return nil, apperrors.Validation("actor_id", "is required")
	}

	rule, err := json.Marshal(spec.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode milestone rule: %w", err)
	}

	var saved *models.Badge
	err = s.db.Transaction(ctx, "upsert badge", func(tx *repository.Tx) error {
		var before any
		existing, err := tx.Badges.GetByType(ctx, spec.BadgeType)
		switch {
		case err == nil:
			before = existing
		case !apperrors.IsNotFound(err):
			return err
		}

		badge := &models.Badge{
			BadgeType:     spec.BadgeType,
			Name:          spec.Name,
			Emoji:         spec.Emoji,
			MilestoneRule: rule,
		}
		if err := tx.Badges.Upsert(ctx, badge); err != nil {
			return err
		}
		saved, err = tx.Badges.GetByType(ctx, spec.BadgeType)
		if err != nil {
			return err
		}

		return s.audit.Append(ctx, tx.Audit, audit.Entry{
			ActorID:    actorID,
			Action:     models.AuditActionBadgeUpserted,
			TargetType: models.AuditTargetBadge,
			TargetID:   spec.BadgeType,
			TargetName: spec.Name,
			Before:     before,
			After:      saved,
			Reason:     reason,
		})
	})
	if err != nil {
		prommetrics.RecordAdminAction(models.AuditActionBadgeUpserted, "failed")
		return nil, err
	}

	prommetrics.RecordAdminAction(models.AuditActionBadgeUpserted, "success")
	s.log.Info().
		Str("actor_id", actorID).
		Str("badge_type", spec.BadgeType).
		Msg("Badge catalog updated")
	return saved, nil
}

// SeedCatalog inserts configured badges that do not exist yet. Existing
// badges keep any edits made through UpsertBadge.
func (s *Service) SeedCatalog(ctx context.Context, specs []models.BadgeSpec) (int, error) {
	created := 0
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return created, fmt.Errorf("invalid seed badge %q: %w", spec.BadgeType, err)
		}

		_, err := s.badgeRepo.GetByType(ctx, spec.BadgeType)
		if err == nil {
			continue
		}
		if !apperrors.IsNotFound(err) {
			return created, err
		}

		rule, err := json.Marshal(spec.Rule)
		if err != nil {
			return created, fmt.Errorf("failed to encode milestone rule: %w", err)
		}
		badge := &models.Badge{BadgeType: spec.BadgeType, Name: spec.Name, Emoji: spec.Emoji, MilestoneRule: rule}
		if err := s.badgeRepo.Create(ctx, badge); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		s.log.Info().Int("created", created).Msg("Badge catalog seeded")
	}
	return created, nil
}

// RefreshHolderGauges recomputes the active holder gauge of every badge.
func (s *Service) RefreshHolderGauges(ctx context.Context) error {
	catalog, err := s.badgeRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to get badges: %w", err)
	}
	for _, badge := range catalog {
		count, err := s.badgeRepo.GetBadgeHoldersCount(ctx, badge.BadgeType)
		if err != nil {
			return err
		}
		prommetrics.SetActiveBadgeHolders(badge.BadgeType, count)
	}
	return nil
}

// GetUserBadges retrieves all badges earned by a consumer.
func (s *Service) GetUserBadges(ctx context.Context, consumerID string) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(ctx, consumerID)
}

// GetBadgeCatalog retrieves all available badges.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	return s.badgeRepo.GetAll(ctx)
}
