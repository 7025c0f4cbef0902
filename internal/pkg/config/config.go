package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr  string `env:"ADMIN_ADDR" envDefault:":9091"`

	// APIKey protects the operator endpoints. An empty key disables auth,
	// intended for local use only.
	APIKey string `env:"API_KEY"`

	// RedisAddr is optional; when unset or unreachable, run history is kept
	// in process memory instead.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RunHistoryTTL time.Duration `env:"RUN_HISTORY_TTL" envDefault:"24h"`

	OutputDir string `env:"OUTPUT_DIR" envDefault:"./reports"`

	// MaxPagesPerRun caps locator-listing pagination across a whole run.
	// Hitting the cap flags the run partial instead of failing it.
	MaxPagesPerRun int `env:"TCM_MAX_PAGES_PER_RUN" envDefault:"50"`

	DownloadConcurrency     int     `env:"DOWNLOAD_CONCURRENCY" envDefault:"4"`
	MetricLookupConcurrency int     `env:"METRIC_LOOKUP_CONCURRENCY" envDefault:"8"`
	MetricLookupRPS         float64 `env:"METRIC_LOOKUP_RPS" envDefault:"10"`

	// SortEventsByTime re-sorts events by timestamp before folding instead of
	// folding in arrival order. Changes observable behavior; off by default.
	SortEventsByTime bool `env:"ACTIVITY_SORT_EVENTS" envDefault:"false"`

	DefaultEventType string `env:"ACTIVITY_EVENT_TYPE" envDefault:"metric_subscription_change"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
