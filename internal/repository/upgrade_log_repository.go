package repository

import (
	"context"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// UpgradeLogRepository handles the append-only level transition history.
type UpgradeLogRepository struct {
	db *DB
}

// NewUpgradeLogRepository creates a new upgrade log repository.
func NewUpgradeLogRepository(db *DB) *UpgradeLogRepository {
	return &UpgradeLogRepository{db: db}
}

// Create appends a transition record. Records are never updated or deleted.
func (r *UpgradeLogRepository) Create(ctx context.Context, entry *models.UpgradeLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperrors.Storage("insert upgrade log", err)
	}
	return nil
}

// ListByConsumer returns a consumer's transitions, most recent first.
func (r *UpgradeLogRepository) ListByConsumer(ctx context.Context, consumerID string) ([]models.UpgradeLog, error) {
	var logs []models.UpgradeLog
	err := r.db.WithContext(ctx).
		Where("consumer_id = ?", consumerID).
		Order("created_at DESC, id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperrors.Storage("list upgrade logs", err)
	}
	return logs, nil
}

// CountByConsumer returns how many transitions a consumer has.
func (r *UpgradeLogRepository) CountByConsumer(ctx context.Context, consumerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UpgradeLog{}).
		Where("consumer_id = ?", consumerID).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Storage("count upgrade logs", err)
	}
	return count, nil
}
