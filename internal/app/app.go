// Package app assembles the application: configuration, logging,
// storage, queue, archive, and the pipeline components built on them.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/alert"
	"github.com/daniel7634/amzwatch/internal/analysis"
	"github.com/daniel7634/amzwatch/internal/archive"
	"github.com/daniel7634/amzwatch/internal/clock/system"
	"github.com/daniel7634/amzwatch/internal/config"
	"github.com/daniel7634/amzwatch/internal/id/uuid"
	"github.com/daniel7634/amzwatch/internal/logging"
	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
	"github.com/daniel7634/amzwatch/internal/queue"
	"github.com/daniel7634/amzwatch/internal/reports"
	"github.com/daniel7634/amzwatch/internal/scheduler"
	"github.com/daniel7634/amzwatch/internal/scrape"
	"github.com/daniel7634/amzwatch/internal/store/postgres"
	"github.com/daniel7634/amzwatch/internal/webhook"
)

// App holds the wired application services. Commands pick the pieces
// they run.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Clock  monitor.Clock

	pool        *pgxpool.Pool
	redisClient *redis.Client

	Statuses  monitor.StatusStore
	Catalog   monitor.CatalogStore
	Snapshots monitor.SnapshotStore
	Runs      monitor.RunStore
	Rules     monitor.RuleSource
	Alerts    monitor.AlertSink
	Reports   monitor.ReportStore

	Queue    monitor.TaskQueue
	Archive  monitor.Archive
	Provider *scrape.Client
	IDs      monitor.IDGenerator
}

// New builds the App from configuration. Callers must Close it.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Development, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  clk,
		pool:   pool,
		IDs:    uuid.New(),
	}

	a.Statuses = postgres.NewStatusStore(pool, logger)
	a.Catalog = postgres.NewCatalogStore(pool)
	a.Snapshots = postgres.NewSnapshotStore(pool)
	a.Runs = postgres.NewRunStore(pool)
	a.Reports = postgres.NewReportStore(pool)

	alertStore := postgres.NewAlertStore(pool)
	a.Alerts = alertStore
	a.Rules = alert.NewCachedRuleSource(alertStore, a.buildRuleCache(cfg), cfg.Alerts.CacheTTL, logger)

	a.Provider = scrape.NewClient(
		cfg.Scraper.BaseURL,
		cfg.Scraper.Token,
		cfg.Scraper.ActorID,
		cfg.Scraper.Timeout,
		logger,
	)

	if a.Queue, err = buildQueue(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.Archive, err = buildArchive(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application initialized",
		zap.String("queue_backend", cfg.Queue.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
	)
	return a, nil
}

func (a *App) buildRuleCache(cfg config.Config) alert.Cache {
	if cfg.Redis.Addr == "" {
		return alert.NewMemoryCache(a.Clock)
	}
	a.redisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return alert.NewRedisCache(a.redisClient)
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.TaskQueue, error) {
	switch cfg.Queue.Backend {
	case "pubsub":
		return queue.NewPubSub(ctx, cfg.Queue.ProjectID, cfg.Queue.TopicID, cfg.Queue.SubscriptionID, logger)
	default:
		return queue.NewMemory(cfg.Queue.Capacity), nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (monitor.Archive, error) {
	switch cfg.Archive.Backend {
	case "gcs":
		return archive.NewGCS(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
	default:
		return archive.NewMemory(), nil
	}
}

// Correlator builds the webhook ingestion pipeline.
func (a *App) Correlator() *webhook.Correlator {
	return webhook.NewCorrelator(
		a.Runs, a.Provider, a.Archive, a.Catalog, a.Snapshots,
		a.Statuses, a.Rules, a.Alerts, a.Clock, a.Logger,
	)
}

// ReportService builds the report submission service.
func (a *App) ReportService() *reports.Service {
	return reports.NewService(a.Reports, a.Queue, a.IDs, a.Clock, a.Logger)
}

// ReportWorker builds the async report worker.
func (a *App) ReportWorker() *reports.Worker {
	analyzer := analysis.NewAnalyzer(a.Snapshots, a.Catalog, a.Clock)
	llm := analysis.NewAnthropicModel(
		a.Config.Anthropic.APIKey,
		a.Config.Anthropic.Model,
		a.Config.Anthropic.MaxTokens,
	)
	generator := analysis.NewGenerator(analyzer, llm, a.Clock, a.Logger)
	return reports.NewWorker(
		reports.WorkerConfig{
			MaxAttempts:    a.Config.Reports.MaxAttempts,
			BackoffBase:    a.Config.Reports.BackoffBase,
			BackoffCap:     a.Config.Reports.BackoffCap,
			AttemptTimeout: a.Config.Reports.AttemptTimeout,
			SoftTimeout:    a.Config.Reports.SoftTimeout,
		},
		a.Queue, a.Reports, generator, a.Logger,
	)
}

// Scheduler builds the dispatch loop.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(
		scheduler.Config{
			Interval:   a.Config.Scheduler.Interval,
			BatchLimit: a.Config.Scheduler.BatchLimit,
			WebhookURL: a.Config.Scraper.WebhookURL,
		},
		a.Statuses, a.Provider, a.Runs, a.Clock, a.Logger,
	)
}

// Migrate applies any pending database migrations.
func (a *App) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, a.pool, a.Logger)
}

// Ready reports whether downstream dependencies answer.
func (a *App) Ready(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "postgres not ready")
	}
	return nil
}

// Close releases all held resources.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn("closing queue failed", zap.Error(err))
		}
	}
	if closer, ok := a.Archive.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("closing archive failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn("closing redis client failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}
