package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse/internal/adapters/clickhouse"
	"pulse/internal/adapters/config"
	"pulse/internal/adapters/errors/noop"
	"pulse/internal/adapters/errors/sentry"
	"pulse/internal/adapters/postgres"
	"pulse/internal/adapters/redis"
	"pulse/internal/api"
	"pulse/internal/api/health"
	telemetryapi "pulse/internal/api/telemetry"
	"pulse/internal/metrics"
	"pulse/internal/pipeline"
	chrepo "pulse/internal/repository/clickhouse"
	pgrepo "pulse/internal/repository/postgres"
	"pulse/internal/services/analytics"
	"pulse/internal/services/rollup"
	"pulse/internal/workers"
	"pulse/pkg/errors"
	"pulse/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize Prometheus collectors
	metrics.Init()

	// Initialize database connections
	db := initDatabases(cfg, log)
	defer db.Close(log)

	// Initialize repositories
	repos := initRepositories(db, log)

	// Initialize the ingestion pipeline
	pipe := initPipeline(cfg, repos, log)

	// Initialize read services
	analyticsService := analytics.NewService(
		repos.ToolUsage,
		repos.Connections,
		repos.DailyStats,
		pipe.Worker,
		db.Redis,
		cfg.Telemetry.DashboardCacheTTL,
	)

	// Initialize background workers
	scheduler := initWorkers(cfg, pipe.Rollup, log)

	// Initialize HTTP server
	server := initServer(cfg, db, pipe.Worker, scheduler, analyticsService, log)

	log.Info("System initialized successfully")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start all components
	pipe.Notifier.Start(ctx)
	pipe.Worker.Start(ctx)

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, log)

	// Graceful shutdown: stop accepting requests, then drain the pipeline,
	// then stop everything that feeds off it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}

	pipe.Channel.Close()
	pipe.Worker.Wait()
	pipe.Notifier.Stop()

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker scheduler shutdown: %v", err)
	}

	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// Database bundles the storage clients
type Database struct {
	Postgres   *postgres.Client
	ClickHouse *clickhouse.Client
	Redis      *redis.Client
}

func (d *Database) Close(log *logger.Logger) {
	if err := d.Redis.Close(); err != nil {
		log.Warnf("Failed to close Redis: %v", err)
	}
	if err := d.ClickHouse.Close(); err != nil {
		log.Warnf("Failed to close ClickHouse: %v", err)
	}
	if err := d.Postgres.Close(); err != nil {
		log.Warnf("Failed to close PostgreSQL: %v", err)
	}
}

// initDatabases initializes database connections (PostgreSQL, ClickHouse, Redis)
func initDatabases(cfg *config.Config, log *logger.Logger) *Database {
	log.Info("Initializing databases...")

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	log.Info("Databases initialized")
	return &Database{
		Postgres:   pgClient,
		ClickHouse: chClient,
		Redis:      redisClient,
	}
}

// Repositories bundles telemetry data access
type Repositories struct {
	ToolUsage   *chrepo.ToolUsageRepository
	Connections *pgrepo.ClientConnectionRepository
	DailyStats  *pgrepo.DailyStatsRepository
}

// initRepositories initializes data repositories
func initRepositories(db *Database, log *logger.Logger) *Repositories {
	log.Info("Initializing repositories...")

	return &Repositories{
		ToolUsage:   chrepo.NewToolUsageRepository(db.ClickHouse.Conn()),
		Connections: pgrepo.NewClientConnectionRepository(db.Postgres.DB()),
		DailyStats:  pgrepo.NewDailyStatsRepository(db.Postgres.DB()),
	}
}

// Pipeline bundles the ingestion components
type Pipeline struct {
	Channel  *pipeline.Channel
	Worker   *pipeline.Worker
	Ingestor *pipeline.Ingestor
	Notifier *pipeline.Notifier
	Rollup   *rollup.Service
}

// initPipeline wires the bounded event channel, its single consumer and the
// rollup refresh machinery behind it
func initPipeline(cfg *config.Config, repos *Repositories, log *logger.Logger) *Pipeline {
	log.Info("Initializing telemetry pipeline...")

	rollupService := rollup.NewService(repos.ToolUsage, repos.Connections, repos.DailyStats)
	notifier := pipeline.NewNotifier(rollupService)
	handlers := pipeline.NewHandlers(repos.ToolUsage, repos.Connections, notifier)

	channel := pipeline.NewChannel(cfg.Telemetry.ChannelCapacity)
	worker := pipeline.NewWorker(channel, handlers)

	metrics.RegisterQueueDepth(func() float64 {
		return float64(channel.Pending())
	})

	log.Infof("Telemetry pipeline initialized (channel capacity %d)", cfg.Telemetry.ChannelCapacity)
	return &Pipeline{
		Channel:  channel,
		Worker:   worker,
		Ingestor: pipeline.NewIngestor(channel),
		Notifier: notifier,
		Rollup:   rollupService,
	}
}

// initWorkers initializes background workers
func initWorkers(cfg *config.Config, rollupService *rollup.Service, log *logger.Logger) *workers.Scheduler {
	log.Info("Initializing workers...")

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewRollupSweeperWorker(
		rollupService,
		cfg.Workers.RollupSweepInterval,
		cfg.Workers.RollupSweepEnabled,
	))

	log.Info("Workers initialized")
	return scheduler
}

// initServer initializes the HTTP server with health and analytics endpoints
func initServer(cfg *config.Config, db *Database, worker *pipeline.Worker, scheduler *workers.Scheduler, analyticsService *analytics.Service, log *logger.Logger) *api.Server {
	healthHandler := health.New(
		log,
		db.Postgres.DB(),
		db.ClickHouse.Conn(),
		db.Redis.Client(),
		worker,
		scheduler,
		cfg.App.Name,
		cfg.App.Version,
	)

	telemetryHandler := telemetryapi.NewHandler(analyticsService, log)

	return api.NewServer(api.ServerConfig{
		Port:               cfg.API.Port,
		ServiceName:        cfg.App.Name,
		Version:            cfg.App.Version,
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
	}, healthHandler, telemetryHandler, log)
}

// waitForShutdown blocks until a termination signal arrives or the run
// context is cancelled
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down...", sig)
	case <-ctx.Done():
		log.Info("Run context cancelled, shutting down...")
	}

	cancel()
}
