package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aimd54/hero-rewards/internal/api"
	"github.com/aimd54/hero-rewards/internal/api/admin"
	"github.com/aimd54/hero-rewards/internal/api/consumer"
	"github.com/aimd54/hero-rewards/internal/config"
	"github.com/aimd54/hero-rewards/internal/events"
	"github.com/aimd54/hero-rewards/internal/lock"
	"github.com/aimd54/hero-rewards/internal/mattermost"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/internal/service/badges"
	"github.com/aimd54/hero-rewards/internal/service/benefits"
	"github.com/aimd54/hero-rewards/internal/service/contributions"
	"github.com/aimd54/hero-rewards/internal/service/gradetable"
	"github.com/aimd54/hero-rewards/internal/service/rewards"
	"github.com/aimd54/hero-rewards/internal/service/scheduler"
	"github.com/aimd54/hero-rewards/internal/service/status"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reconciliation scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if serveMigrate {
		if err := repository.RunMigrations(cfg.Database.Postgres.URL(), log.Component("migrate")); err != nil {
			return err
		}
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	health := map[string]api.HealthChecker{"database": db}

	var rdb *redis.Client
	if cfg.Lock.Backend == "redis" || cfg.Events.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Database.Redis.Addr(),
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
			PoolSize: cfg.Database.Redis.PoolSize,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info().Str("addr", cfg.Database.Redis.Addr()).Msg("Connected to Redis")
		health["redis"] = api.HealthFunc(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rdb.Ping(pingCtx).Err()
		})
	}

	var locker lock.Locker = lock.NewLocal(cfg.Lock.WaitTimeout())
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedis(rdb, cfg.Lock.WaitTimeout(), cfg.Lock.TTL(), log.Component("lock"))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		publisher = events.NewRedisPublisher(rdb, cfg.Events.Channel)
	}

	alerter := mattermost.NewClient(&cfg.Mattermost, log.Component("mattermost"))
	auditLogger := audit.NewLogger(repository.NewAuditRepository(db), log.Component("audit"))
	resolver := benefits.NewResolver(cfg.BenefitDefinitions())

	badgeService := badges.NewService(db, auditLogger, log.Component("badges"))
	gradeTableService := gradetable.NewService(db, auditLogger, log.Component("grade_table"))
	contributionService := contributions.NewService(db, log.Component("contributions"))
	processor := upgrade.NewProcessor(
		db,
		locker,
		badgeService,
		resolver,
		auditLogger,
		publisher,
		alerter,
		log.Component("upgrade"),
	)
	engine := rewards.NewEngine(db, contributionService, processor, badgeService, publisher, log.Component("rewards"))
	statusService := status.NewService(db, resolver, log.Component("status"))

	if err := bootstrap(ctx, cfg, gradeTableService, badgeService, log); err != nil {
		return err
	}

	sched := scheduler.NewService(
		&cfg.Scheduler,
		repository.NewConsumerRepository(db),
		processor,
		contributionService,
		badgeService,
		log.Component("scheduler"),
	)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	metricsPath := ""
	if cfg.Metrics.Prometheus.Enabled {
		metricsPath = cfg.Metrics.Prometheus.Path
	}
	router := api.NewRouter(api.RouterConfig{
		Consumer:    consumer.NewHandler(engine, statusService, gradeTableService, log.Component("api")),
		Admin:       admin.NewHandler(processor, gradeTableService, badgeService, auditLogger, log.Component("api")),
		Health:      health,
		MetricsPath: metricsPath,
		Log:         log.Component("http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("environment", cfg.Server.Environment).
			Str("lock_backend", cfg.Lock.Backend).
			Bool("events_enabled", cfg.Events.Enabled).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// bootstrap activates the configured grade table when none exists yet and
// seeds missing catalog badges.
func bootstrap(
	ctx context.Context,
	cfg *config.Config,
	gradeTableService *gradetable.Service,
	badgeService *badges.Service,
	log *logger.Logger,
) error {
	thresholds, err := cfg.BootstrapThresholds()
	if err != nil {
		return err
	}
	if len(thresholds) > 0 {
		table, created, err := gradeTableService.Bootstrap(ctx, thresholds)
		if err != nil {
			return fmt.Errorf("failed to bootstrap grade table: %w", err)
		}
		if created {
			log.Info().Uint("version", table.Version).Msg("Bootstrapped grade table from configuration")
		}
		prommetrics.SetActiveGradeTableVersion(table.Version)
	} else if table, err := gradeTableService.ActiveTable(ctx); err == nil {
		prommetrics.SetActiveGradeTableVersion(table.Version)
	} else {
		log.Warn().Err(err).Msg("No active grade table; every consumer stays at the lowest level until one is applied")
	}

	specs, err := cfg.SeedBadges()
	if err != nil {
		return err
	}
	seeded, err := badgeService.SeedCatalog(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to seed badge catalog: %w", err)
	}
	if seeded > 0 {
		log.Info().Int("badges", seeded).Msg("Seeded badge catalog")
	}

	if err := badgeService.RefreshHolderGauges(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to initialise badge holder gauges")
	}
	return nil
}
