// Package resilience содержит механизмы обеспечения отказоустойчивости
// вызовов удаленного сервиса аутентификации.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// CircuitState представляет состояние Circuit Breaker.
type CircuitState int

// Состояния Circuit Breaker.
const (
	// StateClosed - нормальное состояние, запросы проходят.
	StateClosed CircuitState = iota
	// StateOpen - состояние отказа, запросы блокируются.
	StateOpen
	// StateHalfOpen - промежуточное состояние, пробные запросы.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Константы для логирования.
const (
	LogCircuitStateChange = "circuit breaker state changed"
	LogCircuitTrip        = "circuit breaker tripped"
	LogCircuitReset       = "circuit breaker reset"
	LogCircuitAllowRetry  = "circuit breaker allowing retry"
	LogCircuitReject      = "circuit breaker rejected request"
)

// Ошибки Circuit Breaker.
var (
	// ErrCircuitOpen возвращается, когда Circuit Breaker находится в открытом состоянии.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerConfig содержит настройки Circuit Breaker.
type CircuitBreakerConfig struct {
	// ErrorThreshold - количество ошибок подряд перед переключением в открытое состояние.
	ErrorThreshold int
	// Timeout - таймаут, после которого Circuit Breaker переходит в полуоткрытое состояние.
	Timeout time.Duration
	// SuccessThreshold - количество успешных запросов для перехода в закрытое состояние.
	SuccessThreshold int
	// IsFailure решает, считается ли ошибка отказом сервиса. Отказы бизнес-логики
	// (неверный пароль, неверный код) сервис не ломают.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig возвращает конфигурацию Circuit Breaker по умолчанию.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ErrorThreshold:   5,
		Timeout:          10 * time.Second,
		SuccessThreshold: 2,
		IsFailure:        IsNetworkFailure,
	}
}

// CircuitBreaker реализует паттерн Circuit Breaker.
type CircuitBreaker struct {
	name  string
	clock clock.Clock
	mu    sync.Mutex

	state           CircuitState
	config          CircuitBreakerConfig
	failures        int
	successes       int
	lastStateChange time.Time
}

// NewCircuitBreaker создает новый экземпляр Circuit Breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, clk clock.Clock) *CircuitBreaker {
	if config.IsFailure == nil {
		config.IsFailure = IsNetworkFailure
	}
	return &CircuitBreaker{
		name:            name,
		clock:           clk,
		state:           StateClosed,
		config:          config,
		lastStateChange: clk.Now(),
	}
}

// Execute выполняет функцию с защитой Circuit Breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.AllowRequest(ctx) {
		return ErrCircuitOpen
	}

	err := fn()
	cb.RecordResult(ctx, err)
	return err
}

// AllowRequest проверяет возможность выполнения запроса.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	log := cb.log(ctx)

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			log.Info(ctx, LogCircuitStateChange, zap.Stringer("new_state", StateHalfOpen))
			log.Info(ctx, LogCircuitAllowRetry)
			return true
		}
		log.Info(ctx, LogCircuitReject)
		return false
	case StateHalfOpen:
		log.Debug(ctx, LogCircuitAllowRetry)
		return true
	default:
		return false
	}
}

// RecordResult записывает результат выполнения функции.
func (cb *CircuitBreaker) RecordResult(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	log := cb.log(ctx)

	if err != nil && cb.config.IsFailure(err) {
		cb.onFailure(ctx, log)
		return
	}

	cb.onSuccess(ctx, log)
}

// onFailure обрабатывает неудачный запрос.
func (cb *CircuitBreaker) onFailure(ctx context.Context, log *logger.Logger) {
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.ErrorThreshold {
			cb.tripBreaker(ctx, log)
		}
	case StateHalfOpen:
		cb.tripBreaker(ctx, log)
	}
}

// onSuccess обрабатывает успешный запрос.
func (cb *CircuitBreaker) onSuccess(ctx context.Context, log *logger.Logger) {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.resetBreaker(ctx, log)
		}
	}
}

// tripBreaker переключает Circuit Breaker в открытое состояние.
func (cb *CircuitBreaker) tripBreaker(ctx context.Context, log *logger.Logger) {
	if cb.state == StateOpen {
		return
	}
	log.Warn(ctx, LogCircuitTrip, zap.Int("failures", cb.failures))
	cb.setState(StateOpen)
	log.Info(ctx, LogCircuitStateChange, zap.Stringer("new_state", StateOpen))
}

// resetBreaker переключает Circuit Breaker в закрытое состояние.
func (cb *CircuitBreaker) resetBreaker(ctx context.Context, log *logger.Logger) {
	log.Info(ctx, LogCircuitReset)
	cb.setState(StateClosed)
	log.Info(ctx, LogCircuitStateChange, zap.Stringer("new_state", StateClosed))
}

func (cb *CircuitBreaker) setState(state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.clock.Now()
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) log(ctx context.Context) *logger.Logger {
	return logger.Log(ctx).With(
		zap.String("circuit_breaker", cb.name),
		zap.Stringer("circuit_state", cb.state),
	)
}

// State возвращает текущее состояние Circuit Breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
