// Package config loads the application's configuration with Viper into an
// explicit Config struct that is passed to constructors. Values come from
// defaults, an optional config file, and AMZWATCH_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// HTTPConfig tunes the API server.
type HTTPConfig struct {
	Addr           string
	RequestTimeout time.Duration
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN string
}

// RedisConfig holds the rule-cache backend settings. When Addr is empty a
// process-local TTL cache is used instead.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ScraperConfig configures the external scraping provider client.
type ScraperConfig struct {
	BaseURL    string
	Token      string
	ActorID    string
	WebhookURL string
	Timeout    time.Duration
}

// SchedulerConfig tunes the dispatch loop.
type SchedulerConfig struct {
	Interval   time.Duration
	BatchLimit int
}

// QueueConfig selects and tunes the report task queue backend.
type QueueConfig struct {
	Backend        string // "memory" or "pubsub"
	ProjectID      string
	TopicID        string
	SubscriptionID string
	Capacity       int
}

// ReportsConfig tunes the async report generation worker.
type ReportsConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	AttemptTimeout time.Duration
	SoftTimeout    time.Duration
}

// AlertsConfig tunes rule caching.
type AlertsConfig struct {
	CacheTTL time.Duration
}

// ArchiveConfig selects the raw-payload archive backend.
type ArchiveConfig struct {
	Backend string // "memory" or "gcs"
	Bucket  string
	Prefix  string
}

// AnthropicConfig configures the report language-generation provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Config is the full application configuration.
type Config struct {
	Development bool
	LogLevel    string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Scraper     ScraperConfig
	Scheduler   SchedulerConfig
	Queue       QueueConfig
	Reports     ReportsConfig
	Alerts      AlertsConfig
	Archive     ArchiveConfig
	Anthropic   AnthropicConfig
}

// setDefaults registers every known key with its default value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("development", false)
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.request_timeout", "60s")

	v.SetDefault("database.dsn", "postgres://localhost:5432/amzwatch?sslmode=disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scraper.base_url", "https://api.apify.com")
	v.SetDefault("scraper.token", "")
	v.SetDefault("scraper.actor_id", "axesso_data~amazon-product-details-scraper")
	v.SetDefault("scraper.webhook_url", "http://localhost:8000/webhook/amazon-products")
	v.SetDefault("scraper.timeout", "30s")

	v.SetDefault("scheduler.interval", "2m")
	v.SetDefault("scheduler.batch_limit", 100)

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.topic_id", "report-tasks")
	v.SetDefault("queue.subscription_id", "report-tasks-worker")
	v.SetDefault("queue.capacity", 128)

	v.SetDefault("reports.max_attempts", 3)
	v.SetDefault("reports.backoff_base", "60s")
	v.SetDefault("reports.backoff_cap", "600s")
	v.SetDefault("reports.attempt_timeout", "30m")
	v.SetDefault("reports.soft_timeout", "25m")

	v.SetDefault("alerts.cache_ttl", "1h")

	v.SetDefault("archive.backend", "memory")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "datasets")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
}

// Load reads configuration from the optional file path and environment
// into a Config. An empty path skips the file and uses defaults plus env.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AMZWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, eris.Wrapf(err, "config: read %s", path)
		}
	}

	cfg := Config{
		Development: v.GetBool("development"),
		LogLevel:    v.GetString("log_level"),
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Scraper: ScraperConfig{
			BaseURL:    v.GetString("scraper.base_url"),
			Token:      v.GetString("scraper.token"),
			ActorID:    v.GetString("scraper.actor_id"),
			WebhookURL: v.GetString("scraper.webhook_url"),
			Timeout:    v.GetDuration("scraper.timeout"),
		},
		Scheduler: SchedulerConfig{
			Interval:   v.GetDuration("scheduler.interval"),
			BatchLimit: v.GetInt("scheduler.batch_limit"),
		},
		Queue: QueueConfig{
			Backend:        v.GetString("queue.backend"),
			ProjectID:      v.GetString("queue.project_id"),
			TopicID:        v.GetString("queue.topic_id"),
			SubscriptionID: v.GetString("queue.subscription_id"),
			Capacity:       v.GetInt("queue.capacity"),
		},
		Reports: ReportsConfig{
			MaxAttempts:    v.GetInt("reports.max_attempts"),
			BackoffBase:    v.GetDuration("reports.backoff_base"),
			BackoffCap:     v.GetDuration("reports.backoff_cap"),
			AttemptTimeout: v.GetDuration("reports.attempt_timeout"),
			SoftTimeout:    v.GetDuration("reports.soft_timeout"),
		},
		Alerts: AlertsConfig{
			CacheTTL: v.GetDuration("alerts.cache_ttl"),
		},
		Archive: ArchiveConfig{
			Backend: v.GetString("archive.backend"),
			Bucket:  v.GetString("archive.bucket"),
			Prefix:  v.GetString("archive.prefix"),
		},
		Anthropic: AnthropicConfig{
			APIKey:    v.GetString("anthropic.api_key"),
			Model:     v.GetString("anthropic.model"),
			MaxTokens: v.GetInt64("anthropic.max_tokens"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Scheduler.Interval <= 0 {
		return eris.New("config: scheduler.interval must be positive")
	}
	if c.Scheduler.BatchLimit <= 0 {
		return eris.New("config: scheduler.batch_limit must be positive")
	}
	switch c.Queue.Backend {
	case "memory", "pubsub":
	default:
		return eris.Errorf("config: unknown queue backend %q", c.Queue.Backend)
	}
	switch c.Archive.Backend {
	case "memory", "gcs":
	default:
		return eris.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}
	if c.Queue.Backend == "pubsub" && c.Queue.ProjectID == "" {
		return eris.New("config: queue.project_id required for pubsub backend")
	}
	if c.Archive.Backend == "gcs" && c.Archive.Bucket == "" {
		return eris.New("config: archive.bucket required for gcs backend")
	}
	return nil
}
