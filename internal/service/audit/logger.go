// Package audit records administrative mutations in the append-only audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// Appender is the write side of the audit log, normally bound to the caller's transaction.
type Appender interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

// Reader lists audit entries.
type Reader interface {
	List(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error)
}

// Entry describes one administrative mutation.
type Entry struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	TargetName string
	Before     any
	After      any
	Reason     string
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Logger writes and reads the audit log.
type Logger struct {
	reader Reader
	log    *logger.Logger
}

// NewLogger creates an audit logger.
func NewLogger(repo *repository.AuditRepository, log *logger.Logger) *Logger {
	return &Logger{reader: repo, log: log}
}

// NewLoggerWithInterfaces creates an audit logger with interface dependencies (useful for testing).
func NewLoggerWithInterfaces(reader Reader, log *logger.Logger) *Logger {
	return &Logger{reader: reader, log: log}
}

// Append validates entry and writes it through w. Pass the mutation's
// transaction so the entry commits or rolls back with it.
func (l *Logger) Append(ctx context.Context, w Appender, entry Entry) error {
	switch {
	case strings.TrimSpace(entry.ActorID) == "":
		return apperrors.Validation("actor_id", "is required")
	case entry.Action == "":
		return apperrors.Validation("action", "is required")
	case entry.TargetType == "" || entry.TargetID == "":
		return apperrors.Validation("target", "type and id are required")
	}

	details, err := json.Marshal(models.AuditChange{Before: entry.Before, After: entry.After})
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	row := &models.AuditLogEntry{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		TargetName: entry.TargetName,
		Details:    details,
		Reason:     entry.Reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := w.Append(ctx, row); err != nil {
		return err
	}

	// Not committed yet; callers log the outcome once their transaction commits.
	l.log.Debug().
		Str("actor_id", entry.ActorID).
		Str("action", entry.Action).
		Str("target_type", entry.TargetType).
		Str("target_id", entry.TargetID).
		Msg("Audit entry staged")
	return nil
}

// List returns entries for operator review, newest first.
func (l *Logger) List(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return l.reader.List(ctx, targetType, targetID, limit)
}
