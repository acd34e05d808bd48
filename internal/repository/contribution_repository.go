package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// ContributionRepository handles the saved-food ledger.
type ContributionRepository struct {
	db *DB
}

// NewContributionRepository creates a new contribution repository.
func NewContributionRepository(db *DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// Insert appends a ledger entry keyed on its source event ID.
// A duplicate source event is not an error: Insert returns false and writes nothing.
func (r *ContributionRepository) Insert(ctx context.Context, c *models.Contribution) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_event_id"}}, DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, apperrors.Storage("insert contribution", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetBySourceEventID retrieves the ledger entry for an order event.
func (r *ContributionRepository) GetBySourceEventID(ctx context.Context, sourceEventID string) (*models.Contribution, error) {
	var c models.Contribution
	err := r.db.WithContext(ctx).Where("source_event_id = ?", sourceEventID).First(&c).Error
	if err != nil {
		return nil, notFoundOr(err, "contribution", sourceEventID, "get contribution")
	}
	return &c, nil
}

// ListByConsumer returns a consumer's most recent ledger entries.
func (r *ContributionRepository) ListByConsumer(ctx context.Context, consumerID string, limit int) ([]models.Contribution, error) {
	var out []models.Contribution
	err := r.db.WithContext(ctx).
		Where("consumer_id = ?", consumerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, apperrors.Storage("list contributions", err)
	}
	return out, nil
}

// SumByConsumer totals the ledger for a consumer. Used to verify the cumulative fields.
func (r *ContributionRepository) SumByConsumer(ctx context.Context, consumerID string) (weightG, co2G int64, err error) {
	var row struct {
		Weight int64
		CO2    int64
	}
	err = r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Select("COALESCE(SUM(weight_g), 0) AS weight, COALESCE(SUM(co2_g), 0) AS co2").
		Where("consumer_id = ?", consumerID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, apperrors.Storage("sum contributions", err)
	}
	return row.Weight, row.CO2, nil
}
