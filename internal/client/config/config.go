// Package config содержит конфигурацию клиента аутентификации.
package config

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"authkeeper/internal/client/app"
	pkgconfig "authkeeper/pkg/config"
	"authkeeper/pkg/logger"
)

// Константы ошибок и сообщений для конфигурации.
const (
	ServiceName         = "authkeeper"
	LogConfigLoaded     = "client configuration loaded"
	ErrFailedLoadConfig = "failed to load configuration"
	ErrInvalidConfig    = "invalid configuration"
)

// Config представляет полную конфигурацию клиента.
type Config struct {
	AuthAPI   AuthAPIConfig   `yaml:"auth_api"`
	Session   SessionConfig   `yaml:"session"`
	TwoFactor TwoFactorConfig `yaml:"two_factor"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
}

// Load загружает конфигурацию из файла path (если он есть) и переменных окружения.
func Load(ctx context.Context, path string) (*Config, error) {
	log := logger.Log(ctx)

	cfg, err := pkgconfig.Load[Config](ctx, ServiceName, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrFailedLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, ErrInvalidConfig, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ErrInvalidConfig, err)
	}

	log.Info(ctx, LogConfigLoaded,
		zap.String("auth_api_base_url", cfg.AuthAPI.BaseURL),
		zap.String("http_address", cfg.HTTP.GetAddress()),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("storage_sealed", cfg.Storage.SealSecret != ""),
		zap.Duration("session_ephemeral_timeout", cfg.Session.EphemeralTimeout),
		zap.Duration("session_durable_timeout", cfg.Session.DurableTimeout),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("log_mode", cfg.Logging.Mode))

	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error

	if c.AuthAPI.BaseURL == "" {
		errs = append(errs, errors.New("auth_api.base_url is required"))
	}
	if c.Session.EphemeralTimeout <= 0 || c.Session.DurableTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if c.Session.WarningLead < 0 || c.Session.WarningLead >= c.Session.EphemeralTimeout {
		errs = append(errs, errors.New("session.warning_lead must be shorter than session.ephemeral_timeout"))
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		errs = append(errs, errors.New("two_factor.max_attempts must be positive"))
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("two_factor.challenge_ttl must be positive"))
	}
	switch c.Storage.Backend {
	case BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

// App возвращает настройки ядра.
func (c *Config) App() app.Config {
	return app.Config{
		Session:   c.Session.App(),
		TwoFactor: c.TwoFactor.App(),
	}
}

// GetEnvironment возвращает режим работы логгера.
func (c *LoggingConfig) GetEnvironment() logger.Environment {
	if c.Mode == "development" {
		return logger.Development
	}
	return logger.Production
}
