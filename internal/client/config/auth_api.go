package config

import (
	"time"

	"authkeeper/internal/client/adapters/authapi"
	"authkeeper/internal/client/adapters/transport"
	"authkeeper/internal/client/resilience"
)

// AuthAPIConfig - подключение к сервису аутентификации.
type AuthAPIConfig struct {
	BaseURL        string        `yaml:"base_url" env:"AUTHKEEPER_AUTH_API_BASE_URL" env-default:"http://localhost:8000/api"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"AUTHKEEPER_AUTH_API_REQUEST_TIMEOUT" env-default:"10s"`

	RetryMaxAttempts    int           `yaml:"retry_max_attempts" env:"AUTHKEEPER_AUTH_API_RETRY_MAX_ATTEMPTS" env-default:"3"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff" env:"AUTHKEEPER_AUTH_API_RETRY_INITIAL_BACKOFF" env-default:"100ms"`
	RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff" env:"AUTHKEEPER_AUTH_API_RETRY_MAX_BACKOFF" env-default:"2s"`

	BreakerErrorThreshold   int           `yaml:"breaker_error_threshold" env:"AUTHKEEPER_AUTH_API_BREAKER_ERROR_THRESHOLD" env-default:"5"`
	BreakerTimeout          time.Duration `yaml:"breaker_timeout" env:"AUTHKEEPER_AUTH_API_BREAKER_TIMEOUT" env-default:"10s"`
	BreakerSuccessThreshold int           `yaml:"breaker_success_threshold" env:"AUTHKEEPER_AUTH_API_BREAKER_SUCCESS_THRESHOLD" env-default:"2"`

	RefreshSkew time.Duration `yaml:"refresh_skew" env:"AUTHKEEPER_AUTH_API_REFRESH_SKEW" env-default:"30s"`
	// ResourceURL - базовый адрес ресурсного API; пустое значение означает BaseURL.
	ResourceURL string `yaml:"resource_url" env:"AUTHKEEPER_AUTH_API_RESOURCE_URL" env-default:""`
}

// ResourceBaseURL возвращает адрес, куда агент передает авторизованные запросы.
func (c *AuthAPIConfig) ResourceBaseURL() string {
	if c.ResourceURL != "" {
		return c.ResourceURL
	}
	return c.BaseURL
}

// Interceptor возвращает настройки перехватчика.
func (c *AuthAPIConfig) Interceptor() transport.Config {
	return transport.Config{RefreshSkew: c.RefreshSkew}
}

// Client возвращает настройки HTTP-клиента.
func (c *AuthAPIConfig) Client() authapi.Config {
	return authapi.Config{
		BaseURL: c.BaseURL,
		Timeout: c.RequestTimeout,
	}
}

// Resilience возвращает настройки Circuit Breaker и повторов.
func (c *AuthAPIConfig) Resilience() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.Retry.MaxAttempts = c.RetryMaxAttempts
	cfg.Retry.InitialBackoff = c.RetryInitialBackoff
	cfg.Retry.MaxBackoff = c.RetryMaxBackoff
	cfg.Breaker.ErrorThreshold = c.BreakerErrorThreshold
	cfg.Breaker.Timeout = c.BreakerTimeout
	cfg.Breaker.SuccessThreshold = c.BreakerSuccessThreshold
	return cfg
}
