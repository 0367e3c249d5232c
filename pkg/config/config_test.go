package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, DriverRedis, cfg.QueueDriver)
	assert.Equal(t, 60*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 2*time.Second, cfg.DispatchDelay())
	assert.Equal(t, 3, cfg.QueueAttempts)
	assert.Equal(t, 5*time.Second, cfg.QueueBackoff())
	assert.Equal(t, 168*time.Hour, cfg.JobRetention())
	assert.Equal(t, 15*time.Minute, cfg.StaleProcessingAfter())
	assert.Equal(t, "@every 5m", cfg.RecoverySchedule)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout())
	assert.Greater(t, cfg.QueueVisibility(), cfg.JobTimeout())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SCRAPE_CACHE_TTL_MINUTES", "5")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SCRAPE_FETCH_RPS", "0.5")

	v := viper.New()
	v.AutomaticEnv()
	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.InDelta(t, 0.5, cfg.FetchRPS, 1e-9)
}

func TestLoad_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("QUEUE_DRIVER", "kafka")
	v.Set("SCRAPE_QUEUE_ATTEMPTS", 0)

	_, err := load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_DRIVER")
	assert.Contains(t, err.Error(), "SCRAPE_QUEUE_ATTEMPTS")
}

func TestLoad_VisibilityMustOutlastJobTimeout(t *testing.T) {
	v := viper.New()
	v.Set("PAGE_LOAD_TIMEOUT_SECONDS", 90)
	v.Set("SCRAPE_QUEUE_VISIBILITY_SECONDS", 180)

	_, err := load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCRAPE_QUEUE_VISIBILITY_SECONDS")

	v.Set("SCRAPE_QUEUE_VISIBILITY_SECONDS", 181)
	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, cfg.JobTimeout())
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "db",
		PostgresPort:     "5432",
		PostgresUser:     "catalog",
		PostgresPassword: "secret",
		PostgresDB:       "catalog",
	}
	assert.Equal(t, "postgres://catalog:secret@db:5432/catalog?sslmode=disable", cfg.PostgresDSN())

	cfg.DatabaseURL = "postgres://other/db"
	assert.Equal(t, "postgres://other/db", cfg.PostgresDSN())
}
