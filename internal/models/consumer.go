package models

import (
	"time"
)

// ConsumerProfile holds a consumer's current level and cumulative impact.
// Grade, Tier and GradeOverridden are written only by the upgrade processor;
// the cumulative fields only by the contribution ledger.
type ConsumerProfile struct {
	ID                     string    `gorm:"primaryKey;size:64" json:"id"`
	Grade                  Grade     `gorm:"size:20;not null" json:"grade"`
	Tier                   int       `gorm:"not null" json:"tier"`
	CumulativeSavedWeightG int64     `gorm:"column:cumulative_saved_weight_g;not null;default:0" json:"cumulative_saved_weight_g"`
	CumulativeCO2G         int64     `gorm:"column:cumulative_co2_g;not null;default:0" json:"cumulative_co2_g"`
	GradeOverridden        bool      `gorm:"not null;default:false" json:"grade_overridden"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName specifies the table name for ConsumerProfile model.
func (ConsumerProfile) TableName() string {
	return "consumer_profiles"
}

// Level returns the profile's current (grade, tier).
func (p *ConsumerProfile) Level() Level {
	return Level{Grade: p.Grade, Tier: p.Tier}
}

// Contribution is one ledger entry of saved food, keyed by the completed order event.
type Contribution struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SourceEventID string    `gorm:"column:source_event_id;uniqueIndex;not null;size:128" json:"source_event_id"`
	ConsumerID    string    `gorm:"not null;index;size:64" json:"consumer_id"`
	WeightG       int64     `gorm:"column:weight_g;not null" json:"weight_g"`
	CO2G          int64     `gorm:"column:co2_g;not null" json:"co2_g"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for Contribution model.
func (Contribution) TableName() string {
	return "contributions"
}
