package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Badge represents a badge that can be earned by consumers.
type Badge struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	BadgeType     string          `gorm:"uniqueIndex;not null;size:64" json:"badge_type"`
	Name          string          `gorm:"not null;size:100" json:"name"`
	Emoji         string          `gorm:"size:16" json:"emoji"`
	MilestoneRule json.RawMessage `gorm:"type:jsonb" json:"milestone_rule"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// MilestoneKind selects how a badge is earned.
type MilestoneKind string

// MilestoneKind constants.
const (
	MilestoneWelcome MilestoneKind = "welcome" // awarded once at profile creation
	MilestoneLevel   MilestoneKind = "level"   // awarded on reaching Grade/Tier or above
)

// MilestoneRule is the decoded form of Badge.MilestoneRule.
type MilestoneRule struct {
	Kind  MilestoneKind `json:"kind"`
	Grade Grade         `json:"grade,omitempty"`
	Tier  int           `json:"tier,omitempty"`
}

// Level returns the level a MilestoneLevel rule requires.
func (r MilestoneRule) Level() Level {
	return Level{Grade: r.Grade, Tier: r.Tier}
}

// Validate checks that the rule is well formed.
func (r MilestoneRule) Validate() error {
	switch r.Kind {
	case MilestoneWelcome:
		return nil
	case MilestoneLevel:
		if !r.Level().Valid() {
			return fmt.Errorf("level milestone requires a known grade and tier >= 1, got %s", r.Level())
		}
		return nil
	default:
		return fmt.Errorf("unsupported milestone kind %q", r.Kind)
	}
}

// Rule decodes the badge's milestone rule.
func (b *Badge) Rule() (MilestoneRule, error) {
	var rule MilestoneRule
	if err := json.Unmarshal(b.MilestoneRule, &rule); err != nil {
		return MilestoneRule{}, fmt.Errorf("failed to parse milestone rule of badge %s: %w", b.BadgeType, err)
	}
	return rule, nil
}

// BadgeSpec is the editable description of a catalog badge.
type BadgeSpec struct {
	BadgeType string        `json:"badge_type" yaml:"badge_type"`
	Name      string        `json:"name" yaml:"name"`
	Emoji     string        `json:"emoji" yaml:"emoji"`
	Rule      MilestoneRule `json:"milestone_rule" yaml:"milestone_rule"`
}

// UserBadge represents a badge earned by a consumer. At most one row exists per (consumer, badge type).
type UserBadge struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ConsumerID string    `gorm:"not null;size:64;uniqueIndex:idx_user_badge" json:"consumer_id"`
	BadgeKey   string    `gorm:"column:badge_type;not null;size:64;uniqueIndex:idx_user_badge" json:"badge_type"`
	Badge      Badge     `gorm:"foreignKey:BadgeKey;references:BadgeType" json:"badge,omitempty"`
	EarnedAt   time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}

// BenefitDefinition describes a perk unlocked at a tier rank. Static configuration, never persisted.
type BenefitDefinition struct {
	ID              string `json:"id"`
	MinTierRequired int    `json:"min_tier_required"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Icon            string `json:"icon"`
}
