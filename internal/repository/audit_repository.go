package repository

import (
	"context"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// AuditRepository handles the append-only audit log.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts an audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperrors.Storage("append audit entry", err)
	}
	return nil
}

// List returns entries for operator review, newest first. Empty filters match everything.
func (r *AuditRepository) List(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	if targetType != "" {
		query = query.Where("target_type = ?", targetType)
	}
	if targetID != "" {
		query = query.Where("target_id = ?", targetID)
	}

	var entries []models.AuditLogEntry
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, apperrors.Storage("list audit entries", err)
	}
	return entries, nil
}
