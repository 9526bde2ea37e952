package resilience

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Config объединяет настройки Circuit Breaker и повторов.
type Config struct {
	Breaker CircuitBreakerConfig
	Retry   RetryConfig
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Breaker: DefaultCircuitBreakerConfig(),
		Retry:   DefaultRetryConfig(),
	}
}

// Policy обеспечивает отказоустойчивость вызовов одного сервиса.
type Policy struct {
	serviceName    string
	circuitBreaker *CircuitBreaker
	retry          *Retry
}

// NewPolicy создает политику для сервиса.
func NewPolicy(serviceName string, cfg Config, clk clock.Clock) *Policy {
	return &Policy{
		serviceName:    serviceName,
		circuitBreaker: NewCircuitBreaker(serviceName, cfg.Breaker, clk),
		retry:          NewRetry(serviceName, cfg.Retry),
	}
}

// State возвращает состояние Circuit Breaker политики.
func (p *Policy) State() CircuitState {
	return p.circuitBreaker.State()
}

// Do выполняет операцию через Circuit Breaker. При retry = true сетевые сбои
// повторяются с экспоненциальной задержкой. Открытый Circuit Breaker сообщается
// как сетевой сбой.
func Do[T any](ctx context.Context, p *Policy, operationName string, retry bool, operation func(context.Context) (T, error)) (T, error) {
	log := logger.Log(ctx).With(
		zap.String("service", p.serviceName),
		zap.String("operation", operationName),
	)
	log.Debug(ctx, "executing operation with resilience")

	var result T
	attempt := func() error {
		return p.circuitBreaker.Execute(ctx, func() error {
			var err error
			result, err = operation(ctx)
			return err
		})
	}

	var err error
	if retry {
		err = p.retry.Execute(ctx, attempt)
	} else {
		err = attempt()
	}

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			err = fmt.Errorf("%w: %w", entities.ErrNetworkFailure, ErrCircuitOpen)
		}
		var zero T
		return zero, err
	}
	return result, nil
}
