// Package testdb provides an in-memory SQLite database for repository and service tests.
package testdb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
)

// New opens a fresh in-memory database with every table migrated.
//
// The pool is capped at one connection: each SQLite :memory: connection is a
// separate database, and one connection also serialises transactions the way
// a row lock would.
func New(t *testing.T) *repository.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	wrapped := repository.Wrap(db)
	if err := wrapped.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	return wrapped
}

// ScenarioThresholds is the bronze/silver/gold table used throughout the tests.
func ScenarioThresholds() []models.GradeThreshold {
	return []models.GradeThreshold{
		{Grade: models.GradeBronze, Tier: 1, MinCumulativeWeightG: 0},
		{Grade: models.GradeSilver, Tier: 1, MinCumulativeWeightG: 5000},
		{Grade: models.GradeGold, Tier: 1, MinCumulativeWeightG: 20000},
	}
}

// SeedGradeTable activates thresholds as a new table version.
func SeedGradeTable(t *testing.T, db *repository.DB, thresholds []models.GradeThreshold) *models.GradeTable {
	t.Helper()

	table, err := repository.NewGradeTableRepository(db).
		Activate(context.Background(), thresholds, "seed", time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to seed grade table: %v", err)
	}
	return table
}

// SeedConsumer inserts a profile at the given level and cumulative weight.
func SeedConsumer(t *testing.T, db *repository.DB, id string, level models.Level, weightG int64) *models.ConsumerProfile {
	t.Helper()

	profile := &models.ConsumerProfile{
		ID:                     id,
		Grade:                  level.Grade,
		Tier:                   level.Tier,
		CumulativeSavedWeightG: weightG,
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("Failed to seed consumer: %v", err)
	}
	return profile
}

// SeedBadge inserts a catalog badge with the given milestone rule.
func SeedBadge(t *testing.T, db *repository.DB, badgeType string, rule models.MilestoneRule) *models.Badge {
	t.Helper()

	raw, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("Failed to encode milestone rule: %v", err)
	}
	badge := &models.Badge{BadgeType: badgeType, Name: badgeType, Emoji: "🏅", MilestoneRule: raw}
	if err := db.Create(badge).Error; err != nil {
		t.Fatalf("Failed to seed badge: %v", err)
	}
	return badge
}

// FailCreates makes every insert into table fail with message, so tests can
// check that the surrounding transaction rolls back.
func FailCreates(t *testing.T, db *repository.DB, table, message string) {
	t.Helper()

	err := db.Callback().Create().Before("gorm:create").Register("testdb:fail_create_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errors.New(message))
		}
	})
	if err != nil {
		t.Fatalf("Failed to register create callback: %v", err)
	}
}
