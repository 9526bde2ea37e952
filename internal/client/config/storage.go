package config

import (
	"time"

	redisdb "authkeeper/pkg/db/redis"
)

// Хранилища durable-раздела.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// StorageConfig - хранилище снимка сессии. Ephemeral-раздел всегда живет в памяти процесса.
type StorageConfig struct {
	Backend    string      `yaml:"backend" env:"AUTHKEEPER_STORAGE_BACKEND" env-default:"redis"`
	KeyPrefix  string      `yaml:"key_prefix" env:"AUTHKEEPER_STORAGE_KEY_PREFIX" env-default:"authkeeper:session"`
	SealSecret string      `yaml:"seal_secret" env:"AUTHKEEPER_STORAGE_SEAL_SECRET" env-default:""`
	Redis      RedisConfig `yaml:"redis"`
}

// DurableKey возвращает ключ durable-снимка.
func (c *StorageConfig) DurableKey() string {
	return c.KeyPrefix + ":durable"
}

// RedisConfig представляет конфигурацию для Redis.
type RedisConfig struct {
	Host         string        `yaml:"host" env:"AUTHKEEPER_REDIS_HOST" env-default:"localhost"`
	Port         int           `yaml:"port" env:"AUTHKEEPER_REDIS_PORT" env-default:"6379"`
	Password     string        `yaml:"password" env:"AUTHKEEPER_REDIS_PASSWORD" env-default:""`
	DB           int           `yaml:"db" env:"AUTHKEEPER_REDIS_DB" env-default:"0"`
	PoolSize     int           `yaml:"pool_size" env:"AUTHKEEPER_REDIS_POOL_SIZE" env-default:"4"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"AUTHKEEPER_REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"AUTHKEEPER_REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"AUTHKEEPER_REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// Connection возвращает настройки подключения к Redis.
func (c *RedisConfig) Connection() *redisdb.Config {
	return &redisdb.Config{
		Host:         c.Host,
		Port:         c.Port,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
