package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// GradeTableRepository handles versioned grade table storage.
type GradeTableRepository struct {
	db *DB
}

// NewGradeTableRepository creates a new grade table repository.
func NewGradeTableRepository(db *DB) *GradeTableRepository {
	return &GradeTableRepository{db: db}
}

func preloadThresholds(db *gorm.DB) *gorm.DB {
	return db.Order("min_cumulative_weight_g ASC, id ASC")
}

// GetActive returns the active table with its thresholds ordered by weight.
func (r *GradeTableRepository) GetActive(ctx context.Context) (*models.GradeTable, error) {
	var table models.GradeTable
	err := r.db.WithContext(ctx).
		Preload("Thresholds", preloadThresholds).
		Where("active = ?", true).
		Order("version DESC").
		First(&table).Error
	if err != nil {
		return nil, notFoundOr(err, "grade table", "active", "get active grade table")
	}
	return &table, nil
}

// GetByVersion returns a specific table version.
func (r *GradeTableRepository) GetByVersion(ctx context.Context, version uint) (*models.GradeTable, error) {
	var table models.GradeTable
	err := r.db.WithContext(ctx).
		Preload("Thresholds", preloadThresholds).
		Where("version = ?", version).
		First(&table).Error
	if err != nil {
		return nil, notFoundOr(err, "grade table", fmt.Sprint(version), "get grade table")
	}
	return &table, nil
}

// LatestVersion returns the highest version number, or 0 if none exist.
func (r *GradeTableRepository) LatestVersion(ctx context.Context) (uint, error) {
	var latest uint
	err := r.db.WithContext(ctx).
		Model(&models.GradeTable{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, apperrors.Storage("get latest grade table version", err)
	}
	return latest, nil
}

// Activate stores thresholds as a new version and makes it the only active one.
// Callers run it inside a transaction so the switch is atomic.
func (r *GradeTableRepository) Activate(ctx context.Context, thresholds []models.GradeThreshold, createdBy string, effectiveFrom time.Time) (*models.GradeTable, error) {
	latest, err := r.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.GradeTable{}).
		Where("active = ?", true).
		Update("active", false).Error
	if err != nil {
		return nil, apperrors.Storage("deactivate grade table", err)
	}

	rows := make([]models.GradeThreshold, len(thresholds))
	for i, th := range thresholds {
		rows[i] = models.GradeThreshold{
			Grade:                th.Grade,
			Tier:                 th.Tier,
			MinCumulativeWeightG: th.MinCumulativeWeightG,
		}
	}

	table := &models.GradeTable{
		Version:       latest + 1,
		EffectiveFrom: effectiveFrom,
		Active:        true,
		CreatedBy:     createdBy,
		Thresholds:    rows,
	}
	if err := r.db.WithContext(ctx).Create(table).Error; err != nil {
		return nil, apperrors.Storage("create grade table", err)
	}
	return table, nil
}
