package models

import (
	"encoding/json"
	"time"
)

// AuditLogEntry is an append-only record of an administrative mutation.
type AuditLogEntry struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ActorID    string          `gorm:"not null;size:64;index" json:"actor_id"`
	Action     string          `gorm:"not null;size:64" json:"action"`
	TargetType string          `gorm:"not null;size:32;index:idx_audit_target" json:"target_type"`
	TargetID   string          `gorm:"not null;size:64;index:idx_audit_target" json:"target_id"`
	TargetName string          `gorm:"size:255" json:"target_name"`
	Details    json.RawMessage `gorm:"type:jsonb" json:"details"`
	Reason     string          `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for AuditLogEntry model.
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}

// Audit action constants.
const (
	AuditActionGradeAdjusted     = "grade_adjusted"
	AuditActionGradeTableUpdated = "grade_table_updated"
	AuditActionBadgeUpserted     = "badge_upserted"
)

// Audit target type constants.
const (
	AuditTargetConsumer   = "consumer"
	AuditTargetGradeTable = "grade_table"
	AuditTargetBadge      = "badge"
)

// AuditChange is the structured before/after payload stored in Details.
type AuditChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}
