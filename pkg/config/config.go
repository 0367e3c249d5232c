package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	QueueDriver   string `mapstructure:"QUEUE_DRIVER"`

	CacheTTLMinutes        int     `mapstructure:"SCRAPE_CACHE_TTL_MINUTES"`
	RateLimitDelayMS       int     `mapstructure:"SCRAPE_RATE_LIMIT_DELAY_MS"`
	QueueAttempts          int     `mapstructure:"SCRAPE_QUEUE_ATTEMPTS"`
	QueueBackoffMS         int     `mapstructure:"SCRAPE_QUEUE_BACKOFF_MS"`
	Workers                int     `mapstructure:"SCRAPE_WORKERS"`
	QueuePollMS            int     `mapstructure:"SCRAPE_QUEUE_POLL_MS"`
	QueueVisibilitySeconds int     `mapstructure:"SCRAPE_QUEUE_VISIBILITY_SECONDS"`
	BaseURL                string  `mapstructure:"SCRAPE_BASE_URL"`
	PageLoadTimeoutSeconds int     `mapstructure:"PAGE_LOAD_TIMEOUT_SECONDS"`
	FetchRPS               float64 `mapstructure:"SCRAPE_FETCH_RPS"`
	TriggerTimeoutSeconds  int     `mapstructure:"SCRAPE_TRIGGER_TIMEOUT_SECONDS"`
	TriggerDebounceSeconds int     `mapstructure:"SCRAPE_TRIGGER_DEBOUNCE_SECONDS"`
	JobRetentionHours      int     `mapstructure:"SCRAPE_JOB_RETENTION_HOURS"`
	StaleProcessingMinutes int     `mapstructure:"SCRAPE_STALE_PROCESSING_MINUTES"`
	RecoverySchedule       string  `mapstructure:"SCRAPE_RECOVERY_SCHEDULE"`
	RetentionSchedule      string  `mapstructure:"SCRAPE_RETENTION_SCHEDULE"`
}

var defaults = map[string]any{
	"SERVER_PORT":                     "8080",
	"LOG_LEVEL":                       "info",
	"DATABASE_URL":                    "",
	"POSTGRES_HOST":                   "localhost",
	"POSTGRES_PORT":                   "5432",
	"POSTGRES_USER":                   "catalog",
	"POSTGRES_PASSWORD":               "catalog",
	"POSTGRES_DB":                     "catalog",
	"REDIS_ADDR":                      "localhost:6379",
	"REDIS_PASSWORD":                  "",
	"REDIS_DB":                        0,
	"STORAGE_DRIVER":                  DriverPostgres,
	"QUEUE_DRIVER":                    DriverRedis,
	"SCRAPE_CACHE_TTL_MINUTES":        60,
	"SCRAPE_RATE_LIMIT_DELAY_MS":      2000,
	"SCRAPE_QUEUE_ATTEMPTS":           3,
	"SCRAPE_QUEUE_BACKOFF_MS":         5000,
	"SCRAPE_WORKERS":                  2,
	"SCRAPE_QUEUE_POLL_MS":            500,
	"SCRAPE_QUEUE_VISIBILITY_SECONDS": 300,
	"SCRAPE_BASE_URL":                 "https://www.worldofbooks.com/",
	"PAGE_LOAD_TIMEOUT_SECONDS":       60,
	"SCRAPE_FETCH_RPS":                1.0,
	"SCRAPE_TRIGGER_TIMEOUT_SECONDS":  30,
	"SCRAPE_TRIGGER_DEBOUNCE_SECONDS": 30,
	"SCRAPE_JOB_RETENTION_HOURS":      168,
	"SCRAPE_STALE_PROCESSING_MINUTES": 15,
	"SCRAPE_RECOVERY_SCHEDULE":        "@every 5m",
	"SCRAPE_RETENTION_SCHEDULE":       "@hourly",
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine: production configures through the environment.
	_ = v.ReadInConfig()

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StorageDriver))
	}
	switch c.QueueDriver {
	case DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("QUEUE_DRIVER must be %q or %q, got %q", DriverRedis, DriverMemory, c.QueueDriver))
	}
	if c.CacheTTLMinutes <= 0 {
		errs = append(errs, errors.New("SCRAPE_CACHE_TTL_MINUTES must be positive"))
	}
	if c.RateLimitDelayMS < 0 {
		errs = append(errs, errors.New("SCRAPE_RATE_LIMIT_DELAY_MS must not be negative"))
	}
	if c.QueueAttempts < 1 {
		errs = append(errs, errors.New("SCRAPE_QUEUE_ATTEMPTS must be at least 1"))
	}
	if c.QueueBackoffMS <= 0 {
		errs = append(errs, errors.New("SCRAPE_QUEUE_BACKOFF_MS must be positive"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("SCRAPE_WORKERS must be at least 1"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SCRAPE_BASE_URL is not an absolute url: %q", c.BaseURL))
	}
	if c.FetchRPS <= 0 {
		errs = append(errs, errors.New("SCRAPE_FETCH_RPS must be positive"))
	}
	if c.PageLoadTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("PAGE_LOAD_TIMEOUT_SECONDS must be positive"))
	}
	if c.QueueVisibility() <= c.JobTimeout() {
		errs = append(errs, fmt.Errorf("SCRAPE_QUEUE_VISIBILITY_SECONDS (%d) must exceed the job timeout of %s", c.QueueVisibilitySeconds, c.JobTimeout()))
	}
	return errors.Join(errs...)
}

// PostgresDSN returns DATABASE_URL, or a URL assembled from the POSTGRES_* parts.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c *Config) DispatchDelay() time.Duration {
	return time.Duration(c.RateLimitDelayMS) * time.Millisecond
}

func (c *Config) QueueBackoff() time.Duration {
	return time.Duration(c.QueueBackoffMS) * time.Millisecond
}

func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.QueuePollMS) * time.Millisecond
}

func (c *Config) QueueVisibility() time.Duration {
	return time.Duration(c.QueueVisibilitySeconds) * time.Second
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSeconds) * time.Second
}

// JobTimeout bounds one queued job: a page load plus extraction and storage.
// A claim must stay invisible for longer than this.
func (c *Config) JobTimeout() time.Duration {
	return 2 * c.PageLoadTimeout()
}

func (c *Config) TriggerTimeout() time.Duration {
	return time.Duration(c.TriggerTimeoutSeconds) * time.Second
}

func (c *Config) TriggerDebounce() time.Duration {
	return time.Duration(c.TriggerDebounceSeconds) * time.Second
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionHours) * time.Hour
}

func (c *Config) StaleProcessingAfter() time.Duration {
	return time.Duration(c.StaleProcessingMinutes) * time.Minute
}
