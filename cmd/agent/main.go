package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	agenthttp "authkeeper/internal/client/adapters/http"
	"authkeeper/internal/client/app"
	"authkeeper/internal/client/bootstrap"
	"authkeeper/internal/client/config"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/eventbus"
	"authkeeper/pkg/logger"
	"authkeeper/pkg/shutdown"
)

// Константы для переменных окружения.
const (
	EnvLoggerMode  = "AUTHKEEPER_LOGGER_MODE"
	EnvLoggerLevel = "AUTHKEEPER_LOGGER_LEVEL"
	EnvConfigPath  = "AUTHKEEPER_CONFIG_PATH"
)

// ResyncInterval - период сверки сроков сессии с настенными часами.
const ResyncInterval = time.Second

// Константы для сообщений об ошибках.
const (
	ErrInitLogger           = "failed to initialize logger"
	ErrSyncLogger           = "failed to sync logger"
	ErrLoadConfig           = "failed to load configuration"
	ErrInitLoggerWithConfig = "failed to initialize logger with configuration settings"
	ErrInitCore             = "failed to initialize client core"
	ErrCreateEventLog       = "failed to create event log"
	ErrStartHTTPServer      = "failed to start HTTP server"
	ErrShutdown             = "shutdown completed with errors"
)

// Константы для игнорируемых ошибок.
const (
	ErrSyncStderr = "sync /dev/stderr: invalid argument"
	ErrSyncStdout = "sync /dev/stdout: invalid argument"
)

// Константы для сообщений сервиса.
const (
	LogServiceStarted      = "session agent started"
	LogServiceShutdownDone = "session agent shutdown complete"
	LogStoppingHTTP        = "stopping HTTP server"
	LogInitHTTPServer      = "initializing HTTP server"
	LogStartingHTTP        = "starting HTTP server"
	LogReloginRequired     = "user must sign in again"
)

func main() {
	env := logger.Development
	if strings.ToLower(os.Getenv(EnvLoggerMode)) == "production" {
		env = logger.Production
	}

	log, err := logger.NewLogger(env, os.Getenv(EnvLoggerLevel))
	if err != nil {
		panic(ErrInitLogger + ": " + err.Error())
	}

	logger.SetGlobalLogger(log)

	ctx := logger.NewRequestIDContext(context.Background(), "")

	var exitCode int

	func() {
		defer func() {
			if err := log.Sync(); err != nil {
				errMsg := err.Error()
				if strings.Contains(errMsg, ErrSyncStderr) || strings.Contains(errMsg, ErrSyncStdout) {
					return
				}
				if _, writeErr := fmt.Fprintf(os.Stderr, "%s: %v\n", ErrSyncLogger, err); writeErr != nil {
					panic(writeErr)
				}
			}
		}()

		cfg, err := config.Load(ctx, os.Getenv(EnvConfigPath))
		if err != nil {
			log.Error(ctx, ErrLoadConfig, zap.Error(err))
			exitCode = 1
			return
		}

		finalLogger, err := logger.NewLogger(cfg.Logging.GetEnvironment(), cfg.Logging.Level)
		if err != nil {
			log.Error(ctx, ErrInitLoggerWithConfig, zap.Error(err))
			exitCode = 1
			return
		}
		logger.SetGlobalLogger(finalLogger)
		log = finalLogger

		log.Info(ctx, LogServiceStarted,
			zap.String("environment", string(cfg.Logging.GetEnvironment())),
			zap.String("log_level", cfg.Logging.Level),
			zap.String("startup_time", time.Now().Format(time.RFC3339)))

		bus := eventbus.Default()
		client, err := bootstrap.New(ctx, cfg, bus, app.AuthenticatorHooks{
			ReloginRequired: func(reason error) {
				log.Warn(ctx, LogReloginRequired, zap.String("reason", entities.UserMessage(reason)))
			},
		})
		if err != nil {
			log.Error(ctx, ErrInitCore, zap.Error(err))
			exitCode = 1
			return
		}
		// Ошибка восстановления не мешает работе: пользователь просто войдет заново.
		_, _ = client.Restore(ctx)

		events, err := agenthttp.NewEventLog(bus, cfg.HTTP.EventLogSize)
		if err != nil {
			log.Error(ctx, ErrCreateEventLog, zap.Error(err))
			_ = client.Close(ctx)
			exitCode = 1
			return
		}

		log.Info(ctx, LogInitHTTPServer)
		server := fiber.New(fiber.Config{
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		})
		agenthttp.SetupRouter(server, agenthttp.NewHandler(client.Authenticator, events, client.Forwarder))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		group, groupCtx := errgroup.WithContext(runCtx)

		log.Info(ctx, LogStartingHTTP, zap.String("address", cfg.HTTP.GetAddress()))
		group.Go(func() error {
			if err := server.Listen(cfg.HTTP.GetAddress(), fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				log.Error(ctx, ErrStartHTTPServer, zap.Error(err))
				return err
			}
			return nil
		})

		group.Go(func() error {
			return client.Watch(groupCtx, ResyncInterval)
		})

		shutdownErr := shutdown.Wait(groupCtx, cfg.Shutdown.GetTimeout(),
			// Остановка HTTP сервера.
			func(ctx context.Context) error {
				log.Info(ctx, LogStoppingHTTP)
				return server.ShutdownWithContext(ctx)
			},
			// Остановка таймеров ядра и закрытие Redis.
			func(ctx context.Context) error {
				events.Close()
				return client.Close(ctx)
			},
		)
		cancel()

		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			exitCode = 1
		}
		if shutdownErr != nil {
			log.Error(ctx, ErrShutdown, zap.Error(shutdownErr))
			exitCode = 1
		}

		log.Info(ctx, LogServiceShutdownDone)
	}()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
