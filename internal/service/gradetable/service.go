// Package gradetable manages the versioned grade threshold configuration.
package gradetable

import (
	"context"
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

// SystemActor is recorded as the actor of the bootstrap table.
const SystemActor = "system"

// TableReader reads the active grade table.
type TableReader interface {
	GetActive(ctx context.Context) (*models.GradeTable, error)
}

// Transactor runs a unit of work in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, op string, fn func(tx *repository.Tx) error) error
}

// AuditLogger appends audit entries through a transaction-bound writer.
type AuditLogger interface {
	Append(ctx context.Context, w audit.Appender, entry audit.Entry) error
}

// Service validates and activates grade table versions.
type Service struct {
	tables TableReader
	db     Transactor
	audit  AuditLogger
	log    *logger.Logger
}

// NewService creates a new grade table service.
func NewService(db *repository.DB, auditLogger *audit.Logger, log *logger.Logger) *Service {
	return &Service{
		tables: repository.NewGradeTableRepository(db),
		db:     db,
		audit:  auditLogger,
		log:    log,
	}
}

// snapshot is the audit representation of a table version.
type snapshot struct {
	Version    uint                    `json:"version"`
	Thresholds []models.GradeThreshold `json:"thresholds"`
}

func snapshotOf(table *models.GradeTable) *snapshot {
	if table == nil {
		return nil
	}
	return &snapshot{Version: table.Version, Thresholds: models.SortedByLevel(table.Thresholds)}
}

// ActiveTable returns the active table version.
func (s *Service) ActiveTable(ctx context.Context) (*models.GradeTable, error) {
	return s.tables.GetActive(ctx)
}

// UpdateGradeTable validates thresholds and activates them as a new version.
// The previous version is deactivated and the change audited in the same
// transaction. Past upgrade logs keep referring to the version they used.
func (s *Service) UpdateGradeTable(ctx context.Context, thresholds []models.GradeThreshold, actorID, reason string) (*models.GradeTable, error) {
	if err := s.checkRequest(thresholds, actorID, reason); err != nil {
		prommetrics.RecordAdminAction(models.AuditActionGradeTableUpdated, "rejected")
		s.log.Warn().Err(err).Str("actor_id", actorID).Msg("Grade table update rejected")
		return nil, err
	}

	table, err := s.activate(ctx, thresholds, actorID, reason, false)
	if err != nil {
		prommetrics.RecordAdminAction(models.AuditActionGradeTableUpdated, "failed")
		return nil, err
	}

	prommetrics.RecordAdminAction(models.AuditActionGradeTableUpdated, "success")
	return table, nil
}

// Bootstrap activates thresholds as version 1 when no table exists yet.
// It reports whether a table was created.
func (s *Service) Bootstrap(ctx context.Context, thresholds []models.GradeThreshold) (*models.GradeTable, bool, error) {
	active, err := s.tables.GetActive(ctx)
	if err == nil {
		prommetrics.SetActiveGradeTableVersion(active.Version)
		return active, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	if err := Validate(thresholds); err != nil {
		return nil, false, fmt.Errorf("invalid bootstrap grade table: %w", err)
	}

	table, err := s.activate(ctx, thresholds, SystemActor, "bootstrap from configuration", true)
	if err != nil {
		return nil, false, err
	}
	return table, true, nil
}

func (s *Service) checkRequest(thresholds []models.GradeThreshold, actorID, reason string) error {
	if strings.TrimSpace(actorID) == "" {
		return apperrors.Validation("actor_id", "is required")
	}
	if strings.TrimSpace(reason) == "" {
		return apperrors.Validation("reason", "is required")
	}
	return Validate(thresholds)
}

func (s *Service) activate(ctx context.Context, thresholds []models.GradeThreshold, actorID, reason string, bootstrap bool) (*models.GradeTable, error) {
	var table *models.GradeTable
	err := s.db.Transaction(ctx, "update grade table", func(tx *repository.Tx) error {
		previous, err := tx.GradeTables.GetActive(ctx)
		switch {
		case err == nil:
			if bootstrap {
				// Another instance bootstrapped first.
				table = previous
				return nil
			}
		case apperrors.IsNotFound(err):
			previous = nil
		default:
			return err
		}

		table, err = tx.GradeTables.Activate(ctx, thresholds, actorID, time.Now().UTC())
		if err != nil {
			return err
		}

		return s.audit.Append(ctx, tx.Audit, audit.Entry{
			ActorID:    actorID,
			Action:     models.AuditActionGradeTableUpdated,
			TargetType: models.AuditTargetGradeTable,
			TargetID:   fmt.Sprint(table.Version),
			TargetName: fmt.Sprintf("v%d", table.Version),
			Before:     snapshotOf(previous),
			After:      snapshotOf(table),
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	prommetrics.SetActiveGradeTableVersion(table.Version)
	s.log.Info().
		Uint("version", table.Version).
		Int("thresholds", len(table.Thresholds)).
		Str("actor_id", actorID).
		Msg("Grade table activated")
	return table, nil
}
