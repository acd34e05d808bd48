package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// ConsumerRepository handles consumer profile persistence.
type ConsumerRepository struct {
	db *DB
}

// NewConsumerRepository creates a new consumer repository.
func NewConsumerRepository(db *DB) *ConsumerRepository {
	return &ConsumerRepository{db: db}
}

// Create inserts a profile unless one already exists for the same ID.
// Returns false when the profile was already present.
func (r *ConsumerRepository) Create(ctx context.Context, profile *models.ConsumerProfile) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(profile)
	if res.Error != nil {
		return false, apperrors.Storage("create consumer profile", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetByID retrieves a profile by consumer ID.
func (r *ConsumerRepository) GetByID(ctx context.Context, id string) (*models.ConsumerProfile, error) {
	var profile models.ConsumerProfile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		return nil, notFoundOr(err, "consumer", id, "get consumer profile")
	}
	return &profile, nil
}

// GetForUpdate retrieves a profile and locks its row until the surrounding transaction ends.
func (r *ConsumerRepository) GetForUpdate(ctx context.Context, id string) (*models.ConsumerProfile, error) {
	var profile models.ConsumerProfile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, notFoundOr(err, "consumer", id, "lock consumer profile")
	}
	return &profile, nil
}

// UpdateLevel sets the consumer's level and override flag.
func (r *ConsumerRepository) UpdateLevel(ctx context.Context, id string, level models.Level, overridden bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.ConsumerProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"grade":            level.Grade,
			"tier":             level.Tier,
			"grade_overridden": overridden,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return apperrors.Storage("update consumer level", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("consumer", id)
	}
	return nil
}

// AddCumulative increments the cumulative saved weight and CO2 totals in place.
func (r *ConsumerRepository) AddCumulative(ctx context.Context, id string, weightG, co2G int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.ConsumerProfile{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"cumulative_saved_weight_g": gorm.Expr("cumulative_saved_weight_g + ?", weightG),
			"cumulative_co2_g":          gorm.Expr("cumulative_co2_g + ?", co2G),
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return apperrors.Storage("add cumulative totals", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("consumer", id)
	}
	return nil
}

// ListIDsAfter returns up to limit consumer IDs greater than afterID, in ascending order.
func (r *ConsumerRepository) ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ConsumerProfile{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Storage("list consumer ids", err)
	}
	return ids, nil
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFoundError and anything else to a StorageError.
func notFoundOr(err error, resource, id, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Storage(op, fmt.Errorf("%s %s: %w", resource, id, err))
}
