// Package redis предоставляет общую реализацию подключения к Redis.
package redis

import (
	"fmt"
	"time"
)

// Значения по умолчанию для подключения к Redis.
const (
	DefaultHost        = "localhost"
	DefaultPort        = 6379
	DefaultDB          = 0
	DefaultPoolSize    = 10
	DefaultTimeout     = 3 * time.Second
	DefaultDialTimeout = 5 * time.Second
)

// Config содержит настройки подключения к Redis.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию Redis по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultTimeout,
		WriteTimeout: DefaultTimeout,
	}
}

// Address возвращает адрес в формате host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
