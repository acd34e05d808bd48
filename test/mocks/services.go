// Package mocks provides function-field fakes of the service interfaces used by the HTTP handlers.
package mocks

import (
	"context"

	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/service/rewards"
	"github.com/aimd54/hero-rewards/internal/service/status"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
)

// MockEngine is a simple mock for the rewards engine
type MockEngine struct {
	EnsureProfileFunc        func(ctx context.Context, consumerID string) (*models.ConsumerProfile, bool, error)
	HandleOrderCompletedFunc func(ctx context.Context, order rewards.OrderCompleted) (*rewards.OrderResult, error)
}

func (m *MockEngine) EnsureProfile(ctx context.Context, consumerID string) (*models.ConsumerProfile, bool, error) {
	if m.EnsureProfileFunc != nil {
		return m.EnsureProfileFunc(ctx, consumerID)
	}
	return &models.ConsumerProfile{ID: consumerID, Grade: models.GradeBronze, Tier: 1}, true, nil
}

func (m *MockEngine) HandleOrderCompleted(ctx context.Context, order rewards.OrderCompleted) (*rewards.OrderResult, error) {
	if m.HandleOrderCompletedFunc != nil {
		return m.HandleOrderCompletedFunc(ctx, order)
	}
	return &rewards.OrderResult{Recorded: true}, nil
}

// MockStatusService is a simple mock for status queries
type MockStatusService struct {
	GetStatusFunc         func(ctx context.Context, consumerID string) (*status.Status, error)
	GetUpgradeHistoryFunc func(ctx context.Context, consumerID string) ([]models.UpgradeLog, error)
}

func (m *MockStatusService) GetStatus(ctx context.Context, consumerID string) (*status.Status, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, consumerID)
	}
	return &status.Status{ConsumerID: consumerID, Grade: models.GradeBronze, Tier: 1, TierRank: 1}, nil
}

func (m *MockStatusService) GetUpgradeHistory(ctx context.Context, consumerID string) ([]models.UpgradeLog, error) {
	if m.GetUpgradeHistoryFunc != nil {
		return m.GetUpgradeHistoryFunc(ctx, consumerID)
	}
	return []models.UpgradeLog{}, nil
}

// MockGradeTableService is a simple mock for grade table reads and updates
type MockGradeTableService struct {
	ActiveTableFunc      func(ctx context.Context) (*models.GradeTable, error)
	UpdateGradeTableFunc func(ctx context.Context, thresholds []models.GradeThreshold, actorID, reason string) (*models.GradeTable, error)
}

func (m *MockGradeTableService) ActiveTable(ctx context.Context) (*models.GradeTable, error) {
	if m.ActiveTableFunc != nil {
		return m.ActiveTableFunc(ctx)
	}
	return &models.GradeTable{Version: 1, Active: true}, nil
}

func (m *MockGradeTableService) UpdateGradeTable(ctx context.Context, thresholds []models.GradeThreshold, actorID, reason string) (*models.GradeTable, error) {
	if m.UpdateGradeTableFunc != nil {
		return m.UpdateGradeTableFunc(ctx, thresholds, actorID, reason)
	}
	return &models.GradeTable{Version: 2, Active: true, CreatedBy: actorID, Thresholds: thresholds}, nil
}

// MockOverrideProcessor is a simple mock for admin grade adjustments
type MockOverrideProcessor struct {
	ProcessAdminOverrideFunc func(ctx context.Context, req upgrade.AdminOverrideRequest) (*upgrade.Transition, error)
}

func (m *MockOverrideProcessor) ProcessAdminOverride(ctx context.Context, req upgrade.AdminOverrideRequest) (*upgrade.Transition, error) {
	if m.ProcessAdminOverrideFunc != nil {
		return m.ProcessAdminOverrideFunc(ctx, req)
	}
	return &upgrade.Transition{
		ConsumerID: req.ConsumerID,
		To:         req.Level(),
		Trigger:    models.TriggerAdmin,
		Reason:     req.Reason,
	}, nil
}

// MockBadgeService is a simple mock for badge catalog administration
type MockBadgeService struct {
	UpsertBadgeFunc     func(ctx context.Context, spec models.BadgeSpec, actorID, reason string) (*models.Badge, error)
	GetBadgeCatalogFunc func(ctx context.Context) ([]models.Badge, error)
}

func (m *MockBadgeService) UpsertBadge(ctx context.Context, spec models.BadgeSpec, actorID, reason string) (*models.Badge, error) {
	if m.UpsertBadgeFunc != nil {
		return m.UpsertBadgeFunc(ctx, spec, actorID, reason)
	}
	return &models.Badge{BadgeType: spec.BadgeType, Name: spec.Name, Emoji: spec.Emoji}, nil
}

func (m *MockBadgeService) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	if m.GetBadgeCatalogFunc != nil {
		return m.GetBadgeCatalogFunc(ctx)
	}
	return []models.Badge{}, nil
}

// MockAuditReader is a simple mock for audit log review
type MockAuditReader struct {
	ListFunc func(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error)
}

func (m *MockAuditReader) List(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, targetType, targetID, limit)
	}
	return []models.AuditLogEntry{}, nil
}
