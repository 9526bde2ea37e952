package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/config"
	"authkeeper/pkg/logger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, app.DefaultConfig(), cfg.App())
	assert.Equal(t, "127.0.0.1:7420", cfg.HTTP.GetAddress())
	assert.Equal(t, config.BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "authkeeper:session:durable", cfg.Storage.DurableKey())
	assert.Equal(t, 5*time.Second, cfg.Shutdown.GetTimeout())
	assert.Equal(t, logger.Production, cfg.Logging.GetEnvironment())

	res := cfg.AuthAPI.Resilience()
	assert.Equal(t, 3, res.Retry.MaxAttempts)
	assert.Equal(t, 5, res.Breaker.ErrorThreshold)
	assert.Equal(t, 10*time.Second, cfg.AuthAPI.Client().Timeout)
	assert.Equal(t, "http://localhost:8000/api", cfg.AuthAPI.ResourceBaseURL())
	assert.Equal(t, 30*time.Second, cfg.AuthAPI.Interceptor().RefreshSkew)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AUTHKEEPER_AUTH_API_BASE_URL", "https://auth.example.com")
	t.Setenv("AUTHKEEPER_AUTH_API_RESOURCE_URL", "https://api.example.com")
	t.Setenv("AUTHKEEPER_SESSION_EPHEMERAL_TIMEOUT", "30m")
	t.Setenv("AUTHKEEPER_2FA_MAX_ATTEMPTS", "3")
	t.Setenv("AUTHKEEPER_STORAGE_BACKEND", "memory")
	t.Setenv("AUTHKEEPER_LOGGER_MODE", "development")

	cfg, err := config.Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.AuthAPI.Client().BaseURL)
	assert.Equal(t, "https://api.example.com", cfg.AuthAPI.ResourceBaseURL())
	assert.Equal(t, 30*time.Minute, cfg.Session.App().EphemeralTimeout)
	assert.Equal(t, 3, cfg.TwoFactor.App().MaxAttempts)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, logger.Development, cfg.Logging.GetEnvironment())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authkeeper.yaml")
	content := `
auth_api:
  base_url: https://file.example.com
session:
  warning_lead: 1m
storage:
  backend: memory
  redis:
    host: redis.internal
    port: 6380
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.AuthAPI.BaseURL)
	assert.Equal(t, time.Minute, cfg.Session.WarningLead)
	assert.Equal(t, 15*time.Minute, cfg.Session.EphemeralTimeout)
	assert.Equal(t, "redis.internal:6380", cfg.Storage.Redis.Connection().Address())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "warning lead longer than timeout", key: "AUTHKEEPER_SESSION_WARNING_LEAD", value: "20m"},
		{name: "no attempts", key: "AUTHKEEPER_2FA_MAX_ATTEMPTS", value: "0"},
		{name: "unknown backend", key: "AUTHKEEPER_STORAGE_BACKEND", value: "sqlite"},
		{name: "empty base url", key: "AUTHKEEPER_AUTH_API_BASE_URL", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := config.Load(context.Background(), "")
			require.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
