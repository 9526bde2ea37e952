// Package bootstrap собирает ядро клиента аутентификации из конфигурации:
// хранилище снимка, клиент сервиса, хранилище токенов, ядро и перехватчик.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authkeeper/internal/client/adapters/authapi"
	"authkeeper/internal/client/adapters/storage"
	"authkeeper/internal/client/adapters/transport"
	"authkeeper/internal/client/app"
	"authkeeper/internal/client/config"
	storagePorts "authkeeper/internal/client/ports/storage"
	"authkeeper/internal/client/resilience"
	"authkeeper/pkg/clock"
	redisdb "authkeeper/pkg/db/redis"
	"authkeeper/pkg/eventbus"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogInitStorage     = "initializing session storage"
	LogInitAuthAPI     = "initializing auth API client"
	LogInitCore        = "initializing authenticator"
	LogSessionRestored = "stored session restored"
	LogNoSession       = "no stored session"
	LogCoreClosed      = "client core closed"

	ErrCreateRedisClient = "failed to create Redis client"
	ErrCreateSealer      = "failed to create storage sealer"
	ErrRestoreSession    = "failed to restore session"
	ErrCloseRedis        = "failed to close Redis client"
)

// Client - собранное ядро и его транспорт.
type Client struct {
	Authenticator *app.Authenticator
	Store         *app.TokenStore
	Interceptor   *transport.Interceptor
	Forwarder     *transport.Forwarder

	redis *goredis.Client
}

// New собирает ядро. Durable-раздел живет в Redis или в памяти процесса
// в зависимости от storage.backend; ephemeral-раздел всегда в памяти.
func New(ctx context.Context, cfg *config.Config, bus eventbus.Bus, hooks app.AuthenticatorHooks) (*Client, error) {
	log := logger.Log(ctx)
	clk := clock.New()
	c := &Client{}

	log.Info(ctx, LogInitStorage, zap.String("backend", cfg.Storage.Backend))
	durable, err := c.durablePartition(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, LogInitAuthAPI, zap.String("base_url", cfg.AuthAPI.BaseURL))
	policy := resilience.NewPolicy(config.ServiceName, cfg.AuthAPI.Resilience(), clk)
	authClient := authapi.NewClient(cfg.AuthAPI.Client(), policy, clk)

	log.Info(ctx, LogInitCore)
	c.Store = app.NewTokenStore(durable, storage.NewMemoryPartition(), authClient, clk)
	c.Authenticator = app.NewAuthenticator(ctx, cfg.App(), authClient, c.Store, bus, clk, hooks)
	c.Interceptor = transport.NewInterceptor(nil, c.Store, clk, cfg.AuthAPI.Interceptor(), c.Authenticator.HandleUnauthorized)
	c.Forwarder = transport.NewForwarder(cfg.AuthAPI.ResourceBaseURL(), cfg.AuthAPI.RequestTimeout, c.Interceptor)

	return c, nil
}

func (c *Client) durablePartition(ctx context.Context, cfg *config.Config) (storagePorts.Partition, error) {
	if cfg.Storage.Backend != config.BackendRedis {
		return storage.NewMemoryPartition(), nil
	}

	var sealer *storage.Sealer
	if cfg.Storage.SealSecret != "" {
		var err error
		sealer, err = storage.NewSealer(cfg.Storage.SealSecret)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrCreateSealer, err)
		}
	}

	client, err := redisdb.NewClient(ctx, cfg.Storage.Redis.Connection())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrCreateRedisClient, err)
	}
	c.redis = client

	return storage.NewRedisPartition(client, cfg.Storage.DurableKey(), cfg.Session.DurableTimeout, sealer), nil
}

// Restore восстанавливает сохраненную сессию, если она есть.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	log := logger.Log(ctx)

	ok, err := c.Authenticator.Restore(ctx)
	switch {
	case err != nil:
		log.Warn(ctx, ErrRestoreSession, zap.Error(err))
		return false, fmt.Errorf("%s: %w", ErrRestoreSession, err)
	case ok:
		log.Info(ctx, LogSessionRestored, zap.Stringer("mode", c.Store.Mode()))
	default:
		log.Info(ctx, LogNoSession)
	}
	return ok, nil
}

// Resync сверяет сроки сессии и challenge с настенными часами.
func (c *Client) Resync() {
	c.Authenticator.TwoFactor().Resync()
	c.Authenticator.Session().Resync()
}

// Watch вызывает Resync каждые interval до отмены ctx. Таймеры стоят, пока хост
// спит; сверка по тикеру завершает просроченную сессию без ожидания запроса.
func (c *Client) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Resync()
		}
	}
}

// Close останавливает таймеры ядра и закрывает Redis. Сохраненная сессия не удаляется.
func (c *Client) Close(ctx context.Context) error {
	c.Authenticator.TwoFactor().Cancel()
	c.Authenticator.Session().Close()

	var errs []error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ErrCloseRedis, err))
		}
	}

	logger.Log(ctx).Info(ctx, LogCoreClosed)
	return errors.Join(errs...)
}
