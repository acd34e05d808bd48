// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/config"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	gormLogLevel := gormlogger.Warn
	if log.Level() <= zerolog.DebugLevel {
		gormLogLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

// Wrap adapts an existing GORM handle. Used by tests with SQLite.
func Wrap(db *gorm.DB) *DB {
	return &DB{db}
}

// AllModels lists every persisted model, in dependency order.
func AllModels() []any {
	return []any{
		&models.ConsumerProfile{},
		&models.Contribution{},
		&models.GradeTable{},
		&models.GradeThreshold{},
		&models.UpgradeLog{},
		&models.Badge{},
		&models.UserBadge{},
		&models.AuditLogEntry{},
	}
}

// AutoMigrate creates or updates tables for all models.
// Production schemas are managed by the SQL migrations in RunMigrations.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(AllModels()...)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Tx exposes repositories bound to one database transaction.
type Tx struct {
	Consumers     *ConsumerRepository
	Contributions *ContributionRepository
	GradeTables   *GradeTableRepository
	UpgradeLogs   *UpgradeLogRepository
	Badges        *BadgeRepository
	Audit         *AuditRepository
}

func newTx(db *DB) *Tx {
	return &Tx{
		Consumers:     NewConsumerRepository(db),
		Contributions: NewContributionRepository(db),
		GradeTables:   NewGradeTableRepository(db),
		UpgradeLogs:   NewUpgradeLogRepository(db),
		Badges:        NewBadgeRepository(db),
		Audit:         NewAuditRepository(db),
	}
}

// Transaction runs fn inside a single database transaction. Every write made
// through the Tx commits together or not at all. Errors that are not already
// part of the apperrors taxonomy are reported as StorageError.
//
// The transaction ignores cancellation of ctx: once started it runs to
// commit or full rollback.
func (db *DB) Transaction(ctx context.Context, op string, fn func(tx *Tx) error) error {
	err := db.DB.WithContext(context.WithoutCancel(ctx)).Transaction(func(gtx *gorm.DB) error {
		return fn(newTx(&DB{gtx}))
	})
	return apperrors.Storage(op, err)
}
