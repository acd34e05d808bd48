// Package status answers read-only questions about a consumer's progression.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/benefits"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// ConsumerRepository interface for profile lookups.
type ConsumerRepository interface {
	GetByID(ctx context.Context, id string) (*models.ConsumerProfile, error)
}

// GradeTableRepository interface for grade table lookups.
type GradeTableRepository interface {
	GetActive(ctx context.Context) (*models.GradeTable, error)
}

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetUserBadges(ctx context.Context, consumerID string) ([]models.UserBadge, error)
}

// UpgradeLogRepository interface for transition history.
type UpgradeLogRepository interface {
	ListByConsumer(ctx context.Context, consumerID string) ([]models.UpgradeLog, error)
}

// BenefitResolver interface for benefit partitioning.
type BenefitResolver interface {
	Resolve(tierRank int) benefits.Resolution
}

// NextLevel is the closest level above the consumer's current one.
type NextLevel struct {
	models.Level
	MinCumulativeWeightG int64 `json:"min_cumulative_weight_g"`
	RemainingWeightG     int64 `json:"remaining_weight_g"`
}

// EarnedBadge is a badge as shown to the consumer.
type EarnedBadge struct {
	BadgeType string    `json:"badge_type"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	EarnedAt  time.Time `json:"earned_at"`
}

// Status is a consumer's progression snapshot.
type Status struct {
	ConsumerID             string                     `json:"consumer_id"`
	Grade                  models.Grade               `json:"grade"`
	Tier                   int                        `json:"tier"`
	TierRank               int                        `json:"tier_rank"`
	CumulativeSavedWeightG int64                      `json:"cumulative_weight_g"`
	CumulativeCO2G         int64                      `json:"cumulative_co2_g"`
	GradeOverridden        bool                       `json:"grade_overridden"`
	GradeTableVersion      uint                       `json:"grade_table_version"`
	NextLevel              *NextLevel                 `json:"next_level"`
	ActiveBenefits         []models.BenefitDefinition `json:"active_benefits"`
	LockedBenefits         []benefits.LockedBenefit   `json:"locked_benefits"`
	Badges                 []EarnedBadge              `json:"badges"`
}

// Service builds status views.
type Service struct {
	consumerRepo   ConsumerRepository
	gradeTableRepo GradeTableRepository
	badgeRepo      BadgeRepository
	upgradeLogRepo UpgradeLogRepository
	resolver       BenefitResolver
	log            *logger.Logger
}

// NewService creates a new status service with concrete repository types.
func NewService(db *repository.DB, resolver *benefits.Resolver, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(
		repository.NewConsumerRepository(db),
		repository.NewGradeTableRepository(db),
		repository.NewBadgeRepository(db),
		repository.NewUpgradeLogRepository(db),
		resolver,
		log,
	)
}

// NewServiceWithInterfaces creates a new status service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	consumerRepo ConsumerRepository,
	gradeTableRepo GradeTableRepository,
	badgeRepo BadgeRepository,
	upgradeLogRepo UpgradeLogRepository,
	resolver BenefitResolver,
	log *logger.Logger,
) *Service {
	return &Service{
		consumerRepo:   consumerRepo,
		gradeTableRepo: gradeTableRepo,
		badgeRepo:      badgeRepo,
		upgradeLogRepo: upgradeLogRepo,
		resolver:       resolver,
		log:            log,
	}
}

// GetStatus returns the consumer's level, totals, benefits and badges.
// Tier rank and benefits are derived from the active grade table on every call.
func (s *Service) GetStatus(ctx context.Context, consumerID string) (*Status, error) {
	profile, err := s.consumerRepo.GetByID(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	table, err := s.gradeTableRepo.GetActive(ctx)
	if apperrors.IsNotFound(err) {
		s.log.Warn().Str("consumer_id", consumerID).Msg("No active grade table, reporting status without progression")
		table = &models.GradeTable{}
	} else if err != nil {
		return nil, err
	}

	earned, err := s.badgeRepo.GetUserBadges(ctx, consumerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load badges: %w", err)
	}

	level := profile.Level()
	rank := table.TierRank(level)
	resolution := s.resolver.Resolve(rank)

	st := &Status{
		ConsumerID:             profile.ID,
		Grade:                  profile.Grade,
		Tier:                   profile.Tier,
		TierRank:               rank,
		CumulativeSavedWeightG: profile.CumulativeSavedWeightG,
		CumulativeCO2G:         profile.CumulativeCO2G,
		GradeOverridden:        profile.GradeOverridden,
		GradeTableVersion:      table.Version,
		ActiveBenefits:         resolution.Active,
		LockedBenefits:         resolution.Locked,
		Badges:                 make([]EarnedBadge, 0, len(earned)),
	}

	if next, ok := table.NextAbove(level); ok {
		remaining := next.MinCumulativeWeightG - profile.CumulativeSavedWeightG
		if remaining < 0 {
			remaining = 0
		}
		st.NextLevel = &NextLevel{
			Level:                next.Level(),
			MinCumulativeWeightG: next.MinCumulativeWeightG,
			RemainingWeightG:     remaining,
		}
	}

	for _, ub := range earned {
		st.Badges = append(st.Badges, EarnedBadge{
			BadgeType: ub.BadgeKey,
			Name:      ub.Badge.Name,
			Emoji:     ub.Badge.Emoji,
			EarnedAt:  ub.EarnedAt,
		})
	}

	return st, nil
}

// GetUpgradeHistory returns the consumer's transitions, most recent first.
func (s *Service) GetUpgradeHistory(ctx context.Context, consumerID string) ([]models.UpgradeLog, error) {
	if _, err := s.consumerRepo.GetByID(ctx, consumerID); err != nil {
		return nil, err
	}
	return s.upgradeLogRepo.ListByConsumer(ctx, consumerID)
}
