package config

import (
	"fmt"
	"time"
)

// HTTPConfig представляет конфигурацию локального HTTP API агента.
type HTTPConfig struct {
	Host         string        `yaml:"host" env:"AUTHKEEPER_HTTP_HOST" env-default:"127.0.0.1"`
	Port         int           `yaml:"port" env:"AUTHKEEPER_HTTP_PORT" env-default:"7420"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"AUTHKEEPER_HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"AUTHKEEPER_HTTP_WRITE_TIMEOUT" env-default:"15s"`
	// EventLogSize - сколько последних событий сессии хранит агент.
	EventLogSize int `yaml:"event_log_size" env:"AUTHKEEPER_HTTP_EVENT_LOG_SIZE" env-default:"256"`
}

// GetAddress возвращает адрес HTTP сервера.
func (c *HTTPConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
