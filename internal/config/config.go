// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aimd54/hero-rewards/internal/models"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Lock       LockConfig        `mapstructure:"lock"`
	Events     EventsConfig      `mapstructure:"events"`
	Scheduler  SchedulerConfig   `mapstructure:"scheduler"`
	Mattermost MattermostConfig  `mapstructure:"mattermost"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	GradeTable []ThresholdConfig `mapstructure:"grade_table"`
	Badges     []BadgeConfig     `mapstructure:"badges"`
	Benefits   []BenefitConfig   `mapstructure:"benefits"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq style connection string used by GORM.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// URL used by the migration runner.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LockConfig selects the per-consumer lock backend.
type LockConfig struct {
	Backend       string `mapstructure:"backend"` // "local" or "redis"
	WaitTimeoutMS int    `mapstructure:"wait_timeout_ms"`
	TTLMS         int    `mapstructure:"ttl_ms"`
}

// WaitTimeout returns how long to wait for a busy consumer before giving up.
func (c *LockConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMS) * time.Millisecond
}

// TTL returns the expiry applied to distributed locks.
func (c *LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMS) * time.Millisecond
}

// EventsConfig contains change-notification publishing settings.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// SchedulerConfig contains the reconciliation job settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ReconcileSchedule string `mapstructure:"reconcile_schedule"` // cron expression
	Timezone          string `mapstructure:"timezone"`
	BatchSize         int    `mapstructure:"batch_size"`
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// MattermostConfig contains admin alert webhook settings.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ThresholdConfig is one bootstrap grade table row.
type ThresholdConfig struct {
	Grade                string `mapstructure:"grade"`
	Tier                 int    `mapstructure:"tier"`
	MinCumulativeWeightG int64  `mapstructure:"min_cumulative_weight_g"`
}

// BadgeConfig seeds the badge catalog.
type BadgeConfig struct {
	BadgeType string `mapstructure:"badge_type"`
	Name      string `mapstructure:"name"`
	Emoji     string `mapstructure:"emoji"`
	Kind      string `mapstructure:"kind"`
	Grade     string `mapstructure:"grade"`
	Tier      int    `mapstructure:"tier"`
}

// BenefitConfig defines a tier-gated benefit.
type BenefitConfig struct {
	ID              string `mapstructure:"id"`
	MinTierRequired int    `mapstructure:"min_tier_required"`
	Title           string `mapstructure:"title"`
	Description     string `mapstructure:"description"`
	Icon            string `mapstructure:"icon"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.wait_timeout_ms", 2000)
	v.SetDefault("lock.ttl_ms", 10000)
	v.SetDefault("events.channel", "hero-rewards.events")
	v.SetDefault("scheduler.reconcile_schedule", "30 3 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.batch_size", 200)
	v.SetDefault("metrics.prometheus.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hero-rewards/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Lock and events
	_ = v.BindEnv("lock.backend", "LOCK_BACKEND")
	_ = v.BindEnv("lock.wait_timeout_ms", "LOCK_WAIT_TIMEOUT_MS")
	_ = v.BindEnv("lock.ttl_ms", "LOCK_TTL_MS")
	_ = v.BindEnv("events.enabled", "EVENTS_ENABLED")
	_ = v.BindEnv("events.channel", "EVENTS_CHANNEL")

	// Mattermost configuration
	_ = v.BindEnv("mattermost.webhook_url", "MATTERMOST_WEBHOOK_URL")
	_ = v.BindEnv("mattermost.channel", "MATTERMOST_CHANNEL")
	_ = v.BindEnv("mattermost.enabled", "MATTERMOST_ENABLED")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.reconcile_schedule", "SCHEDULER_RECONCILE_SCHEDULE")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.batch_size", "SCHEDULER_BATCH_SIZE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Database.Redis.Host == "" {
			return fmt.Errorf("database.redis.host is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("lock.backend must be local or redis, got %q", c.Lock.Backend)
	}
	if c.Lock.WaitTimeoutMS <= 0 {
		return fmt.Errorf("lock.wait_timeout_ms must be positive")
	}
	if c.Events.Enabled && c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when events are enabled")
	}
	if c.Mattermost.Enabled && c.Mattermost.WebhookURL == "" {
		return fmt.Errorf("mattermost.webhook_url is required when mattermost is enabled")
	}
	for i, b := range c.Benefits {
		if b.ID == "" {
			return fmt.Errorf("benefits[%d].id is required", i)
		}
		if b.MinTierRequired < 1 {
			return fmt.Errorf("benefits[%d].min_tier_required must be >= 1", i)
		}
	}
	return nil
}

// BenefitDefinitions converts the configured benefits into domain definitions.
func (c *Config) BenefitDefinitions() []models.BenefitDefinition {
	defs := make([]models.BenefitDefinition, 0, len(c.Benefits))
	for _, b := range c.Benefits {
		defs = append(defs, models.BenefitDefinition{
			ID:              b.ID,
			MinTierRequired: b.MinTierRequired,
			Title:           b.Title,
			Description:     b.Description,
			Icon:            b.Icon,
		})
	}
	return defs
}

// BootstrapThresholds converts the configured bootstrap grade table.
func (c *Config) BootstrapThresholds() ([]models.GradeThreshold, error) {
	out := make([]models.GradeThreshold, 0, len(c.GradeTable))
	for i, t := range c.GradeTable {
		grade, err := models.ParseGrade(t.Grade)
		if err != nil {
			return nil, fmt.Errorf("grade_table[%d]: %w", i, err)
		}
		out = append(out, models.GradeThreshold{
			Grade:                grade,
			Tier:                 t.Tier,
			MinCumulativeWeightG: t.MinCumulativeWeightG,
		})
	}
	return out, nil
}

// SeedBadges converts the configured badge catalog.
func (c *Config) SeedBadges() ([]models.BadgeSpec, error) {
	specs := make([]models.BadgeSpec, 0, len(c.Badges))
	for i, b := range c.Badges {
		rule := models.MilestoneRule{Kind: models.MilestoneKind(b.Kind), Tier: b.Tier}
		if rule.Kind == models.MilestoneLevel {
			grade, err := models.ParseGrade(b.Grade)
			if err != nil {
				return nil, fmt.Errorf("badges[%d]: %w", i, err)
			}
			rule.Grade = grade
		}
		specs = append(specs, models.BadgeSpec{BadgeType: b.BadgeType, Name: b.Name, Emoji: b.Emoji, Rule: rule})
	}
	return specs, nil
}
