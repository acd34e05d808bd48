package models

import (
	"time"
)

// UpgradeTrigger distinguishes automatic transitions from admin overrides.
type UpgradeTrigger string

// UpgradeTrigger constants.
const (
	TriggerAutomatic UpgradeTrigger = "automatic"
	TriggerAdmin     UpgradeTrigger = "admin"
)

// UpgradeLog is an immutable record of one level transition.
type UpgradeLog struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ConsumerID        string         `gorm:"not null;index;size:64" json:"consumer_id"`
	FromGrade         Grade          `gorm:"size:20;not null" json:"from_grade"`
	FromTier          int            `gorm:"not null" json:"from_tier"`
	ToGrade           Grade          `gorm:"size:20;not null" json:"to_grade"`
	ToTier            int            `gorm:"not null" json:"to_tier"`
	Trigger           UpgradeTrigger `gorm:"size:20;not null" json:"trigger"`
	Reason            *string        `gorm:"type:text" json:"reason,omitempty"`
	GradeTableVersion uint           `json:"grade_table_version"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for UpgradeLog model.
func (UpgradeLog) TableName() string {
	return "upgrade_logs"
}

// From returns the level before the transition.
func (u *UpgradeLog) From() Level {
	return Level{Grade: u.FromGrade, Tier: u.FromTier}
}

// To returns the level after the transition.
func (u *UpgradeLog) To() Level {
	return Level{Grade: u.ToGrade, Tier: u.ToTier}
}
