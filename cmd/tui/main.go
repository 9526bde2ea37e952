package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"authkeeper/internal/client/adapters/tui"
	"authkeeper/internal/client/bootstrap"
	"authkeeper/internal/client/config"
	"authkeeper/pkg/eventbus"
	"authkeeper/pkg/logger"
)

// Константы для переменных окружения.
const (
	EnvLoggerLevel = "AUTHKEEPER_LOGGER_LEVEL"
	EnvConfigPath  = "AUTHKEEPER_CONFIG_PATH"
	EnvLogFile     = "AUTHKEEPER_TUI_LOG_FILE"
)

// DefaultLogFile - файл журнала, если AUTHKEEPER_TUI_LOG_FILE не задан.
const DefaultLogFile = "authkeeper-tui.log"

// Константы для сообщений об ошибках.
const (
	ErrInitLogger    = "failed to initialize logger"
	ErrLoadConfig    = "failed to load configuration"
	ErrInitCore      = "failed to initialize client core"
	ErrSubscribe     = "failed to subscribe to session events"
	ErrRunProgram    = "terminal UI exited with error"
	ErrCloseCore     = "failed to close client core"
	LogProgramStart  = "terminal UI started"
	LogProgramFinish = "terminal UI finished"
)

func main() {
	if err := run(); err != nil {
		if _, writeErr := fmt.Fprintln(os.Stderr, err); writeErr != nil {
			panic(writeErr)
		}
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv(EnvLogFile)
	if path == "" {
		path = DefaultLogFile
	}

	// Терминал занят интерфейсом, поэтому журнал всегда пишется в файл.
	log, err := logger.NewFileLogger(logger.Production, os.Getenv(EnvLoggerLevel), path)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrInitLogger, err)
	}
	logger.SetGlobalLogger(log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.NewRequestIDContext(context.Background(), ""))
	defer cancel()

	cfg, err := config.Load(ctx, os.Getenv(EnvConfigPath))
	if err != nil {
		log.Error(ctx, ErrLoadConfig, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrLoadConfig, err)
	}
	if fileLog, err := logger.NewFileLogger(cfg.Logging.GetEnvironment(), cfg.Logging.Level, path); err == nil {
		logger.SetGlobalLogger(fileLog)
		log = fileLog
	}

	bus := eventbus.Default()
	relay := tui.NewRelay(tui.DefaultRelaySize)

	client, err := bootstrap.New(ctx, cfg, bus, relay.Hooks())
	if err != nil {
		log.Error(ctx, ErrInitCore, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrInitCore, err)
	}
	defer func() {
		if err := client.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error(ctx, ErrCloseCore, zap.Error(err))
		}
	}()

	unsubscribe, err := relay.Subscribe(bus)
	if err != nil {
		log.Error(ctx, ErrSubscribe, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrSubscribe, err)
	}
	defer unsubscribe()

	model := tui.NewModel(ctx, tui.DepsFor(client.Authenticator))
	if restored, _ := client.Restore(ctx); restored {
		if user, ok := client.Store.User(); ok {
			model = model.WithUser(user)
		}
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	go relay.Run(ctx, program.Send)

	log.Info(ctx, LogProgramStart)
	if _, err := program.Run(); err != nil {
		log.Error(ctx, ErrRunProgram, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrRunProgram, err)
	}
	log.Info(ctx, LogProgramFinish)
	return nil
}
