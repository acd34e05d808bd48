package models

import (
	"sort"
	"time"
)

// GradeTable is one version of the threshold configuration. Only one version is active at a time.
type GradeTable struct {
	Version       uint             `gorm:"primaryKey;autoIncrement:false" json:"version"`
	EffectiveFrom time.Time        `gorm:"not null" json:"effective_from"`
	Active        bool             `gorm:"not null;default:false;index" json:"active"`
	CreatedBy     string           `gorm:"size:64" json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	Thresholds    []GradeThreshold `gorm:"foreignKey:Version;references:Version" json:"thresholds"`
}

// TableName specifies the table name for GradeTable model.
func (GradeTable) TableName() string {
	return "grade_tables"
}

// GradeThreshold maps a minimum cumulative saved weight to a level.
type GradeThreshold struct {
	ID                   uint  `gorm:"primaryKey" json:"-" yaml:"-"`
	Version              uint  `gorm:"not null;uniqueIndex:idx_threshold_level" json:"-" yaml:"-"`
	Grade                Grade `gorm:"size:20;not null;uniqueIndex:idx_threshold_level" json:"grade" yaml:"grade"`
	Tier                 int   `gorm:"not null;uniqueIndex:idx_threshold_level" json:"tier" yaml:"tier"`
	MinCumulativeWeightG int64 `gorm:"column:min_cumulative_weight_g;not null" json:"min_cumulative_weight_g" yaml:"min_cumulative_weight_g"`
}

// TableName specifies the table name for GradeThreshold model.
func (GradeThreshold) TableName() string {
	return "grade_thresholds"
}

// Level returns the threshold's (grade, tier).
func (t GradeThreshold) Level() Level {
	return Level{Grade: t.Grade, Tier: t.Tier}
}

// SortedByLevel returns a copy of thresholds ordered by ascending level.
func SortedByLevel(thresholds []GradeThreshold) []GradeThreshold {
	out := make([]GradeThreshold, len(thresholds))
	copy(out, thresholds)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Level().Less(out[j].Level())
	})
	return out
}

// Contains reports whether level is defined by the table.
func (t *GradeTable) Contains(level Level) bool {
	for _, th := range t.Thresholds {
		if th.Level() == level {
			return true
		}
	}
	return false
}

// Lowest returns the lowest defined level, or LowestLevel for an empty table.
func (t *GradeTable) Lowest() Level {
	if len(t.Thresholds) == 0 {
		return LowestLevel
	}
	lowest := t.Thresholds[0].Level()
	for _, th := range t.Thresholds[1:] {
		if th.Level().Less(lowest) {
			lowest = th.Level()
		}
	}
	return lowest
}

// TierRank returns the 1-based number of table levels at or below level.
// Levels below the whole table still rank 1.
func (t *GradeTable) TierRank(level Level) int {
	rank := 0
	for _, th := range t.Thresholds {
		if th.Level().Compare(level) <= 0 {
			rank++
		}
	}
	if rank < 1 {
		return 1
	}
	return rank
}

// NextAbove returns the lowest threshold strictly above level, if any.
func (t *GradeTable) NextAbove(level Level) (GradeThreshold, bool) {
	var (
		next  GradeThreshold
		found bool
	)
	for _, th := range t.Thresholds {
		if th.Level().Compare(level) <= 0 {
			continue
		}
		if !found || th.Level().Less(next.Level()) {
			next = th
			found = true
		}
	}
	return next, found
}
