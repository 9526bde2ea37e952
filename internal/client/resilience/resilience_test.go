package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/internal/client/resilience"
	"authkeeper/pkg/clock"
)

var errNetwork = fmt.Errorf("dial tcp: %w", entities.ErrNetworkFailure)

func fastConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = time.Millisecond
	cfg.Breaker.ErrorThreshold = 3
	cfg.Breaker.SuccessThreshold = 1
	cfg.Breaker.Timeout = 10 * time.Second
	return cfg
}

func TestDoRetriesNetworkFailures(t *testing.T) {
	policy := resilience.NewPolicy("auth", fastConfig(), clock.New())

	calls := 0
	got, err := resilience.Do(context.Background(), policy, "refresh", true, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errNetwork
		}
		return "token", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "token", got)
	assert.Equal(t, 3, calls)
}

func TestDoNeverRetriesDomainErrors(t *testing.T) {
	policy := resilience.NewPolicy("auth", fastConfig(), clock.New())

	for _, domainErr := range []error{
		entities.ErrRefreshInvalid,
		entities.ErrChallengeExpired,
		&entities.RateLimitedError{RetryAfter: time.Second},
	} {
		calls := 0
		_, err := resilience.Do(context.Background(), policy, "refresh", true, func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, domainErr
		})
		require.ErrorIs(t, err, domainErr)
		assert.Equal(t, 1, calls, domainErr.Error())
	}
	assert.Equal(t, resilience.StateClosed, policy.State())
}

func TestDoWithoutRetry(t *testing.T) {
	policy := resilience.NewPolicy("auth", fastConfig(), clock.New())

	calls := 0
	_, err := resilience.Do(context.Background(), policy, "login", false, func(context.Context) (int, error) {
		calls++
		return 0, errNetwork
	})
	require.ErrorIs(t, err, entities.ErrNetworkFailure)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerOpensOnNetworkFailures(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	policy := resilience.NewPolicy("auth", fastConfig(), clk)
	ctx := context.Background()

	fail := func(context.Context) (int, error) { return 0, errNetwork }
	for i := 0; i < 3; i++ {
		_, _ = resilience.Do(ctx, policy, "login", false, fail)
	}
	require.Equal(t, resilience.StateOpen, policy.State())

	calls := 0
	_, err := resilience.Do(ctx, policy, "login", false, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.ErrorIs(t, err, entities.ErrNetworkFailure)
	assert.Zero(t, calls)

	clk.Advance(10 * time.Second)

	got, err := resilience.Do(ctx, policy, "login", false, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, resilience.StateClosed, policy.State())
}

func TestCircuitBreakerIgnoresDomainErrors(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("auth", resilience.CircuitBreakerConfig{
		ErrorThreshold:   1,
		Timeout:          time.Second,
		SuccessThreshold: 1,
	}, clock.New())

	err := breaker.Execute(context.Background(), func() error { return entities.ErrInvalidCredentials })
	require.ErrorIs(t, err, entities.ErrInvalidCredentials)
	assert.Equal(t, resilience.StateClosed, breaker.State())
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = time.Hour
	retry := resilience.NewRetry("auth", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Execute(ctx, func() error {
		calls++
		cancel()
		return errNetwork
	})

	require.ErrorIs(t, err, resilience.ErrContextCanceled)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
