package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// BadgeRepository handles badge catalog and award operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the catalog.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	if err := r.db.WithContext(ctx).Create(badge).Error; err != nil {
		return apperrors.Storage("create badge", err)
	}
	return nil
}

// Upsert creates the badge or updates name, emoji and rule of an existing one.
func (r *BadgeRepository) Upsert(ctx context.Context, badge *models.Badge) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "badge_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "emoji", "milestone_rule", "updated_at"}),
		}).
		Create(badge).Error
	if err != nil {
		return apperrors.Storage("upsert badge", err)
	}
	return nil
}

// GetByType retrieves a badge by its type key.
func (r *BadgeRepository) GetByType(ctx context.Context, badgeType string) (*models.Badge, error) {
	var badge models.Badge
	err := r.db.WithContext(ctx).Where("badge_type = ?", badgeType).First(&badge).Error
	if err != nil {
		return nil, notFoundOr(err, "badge", badgeType, "get badge")
	}
	return &badge, nil
}

// GetAll retrieves the whole catalog.
func (r *BadgeRepository) GetAll(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&badges).Error; err != nil {
		return nil, apperrors.Storage("list badges", err)
	}
	return badges, nil
}

// Award records that a consumer earned a badge.
// The (consumer, badge type) unique index makes this exactly-once: a second
// award is a no-op that returns false.
func (r *BadgeRepository) Award(ctx context.Context, consumerID, badgeType string, earnedAt time.Time) (bool, error) {
	userBadge := &models.UserBadge{
		ConsumerID: consumerID,
		BadgeKey:   badgeType,
		EarnedAt:   earnedAt,
	}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "consumer_id"}, {Name: "badge_type"}},
			DoNothing: true,
		}).
		Create(userBadge)
	if res.Error != nil {
		return false, apperrors.Storage("award badge", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetUserBadges retrieves all badges earned by a consumer with badge details preloaded.
func (r *BadgeRepository) GetUserBadges(ctx context.Context, consumerID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("consumer_id = ?", consumerID).
		Preload("Badge").
		Order("earned_at DESC, id DESC").
		Find(&userBadges).Error
	if err != nil {
		return nil, apperrors.Storage("list user badges", err)
	}
	return userBadges, nil
}

// HasUserEarnedBadge checks if a consumer has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(ctx context.Context, consumerID, badgeType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("consumer_id = ? AND badge_type = ?", consumerID, badgeType).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Storage("check user badge", err)
	}
	return count > 0, nil
}

// GetBadgeHoldersCount returns the number of consumers who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(ctx context.Context, badgeType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("badge_type = ?", badgeType).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Storage("count badge holders", err)
	}
	return count, nil
}
