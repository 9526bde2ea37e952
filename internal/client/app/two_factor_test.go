package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
)

const challenge = "challenge-1"

// hookRecorder собирает вызовы хуков машины второго фактора.
type hookRecorder struct {
	mu       sync.Mutex
	verified []entities.Authenticated
	rejected []error
	relogin  []error
}

func (r *hookRecorder) hooks() app.TwoFactorHooks {
	return app.TwoFactorHooks{
		Verified: func(_ context.Context, a entities.Authenticated) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.verified = append(r.verified, a)
		},
		Rejected: func(_ context.Context, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rejected = append(r.rejected, err)
		},
		ReloginRequired: func(_ context.Context, reason error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.relogin = append(r.relogin, reason)
		},
	}
}

func (r *hookRecorder) reloginReasons() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.relogin...)
}

type twoFactorFixture struct {
	api   *mockAuthAPI
	clock *clock.Fake
	hooks *hookRecorder
	tf    *app.TwoFactor
}

func newTwoFactor(t *testing.T) twoFactorFixture {
	t.Helper()

	f := twoFactorFixture{
		api:   &mockAuthAPI{},
		clock: clock.NewFake(startTime),
		hooks: &hookRecorder{},
	}
	f.tf = app.NewTwoFactor(context.Background(), app.DefaultTwoFactorConfig(), f.api, f.clock, f.hooks.hooks())
	t.Cleanup(func() { f.api.AssertExpectations(t) })
	return f
}

func authenticated(access string) entities.Authenticated {
	return entities.Authenticated{Tokens: testPair(access), User: entities.User{ID: "u1"}}
}

func TestTwoFactorBegin(t *testing.T) {
	f := newTwoFactor(t)

	f.tf.Begin(challenge)

	snapshot := f.tf.Snapshot()
	assert.Equal(t, app.TwoFactorPending, snapshot.State)
	assert.Equal(t, 5, snapshot.RemainingAttempts)
	assert.Equal(t, 300*time.Second, snapshot.ExpiresIn)
	assert.Equal(t, startTime.Add(5*time.Minute), snapshot.ExpiresAt)
	assert.Zero(t, snapshot.ResendIn)
}

func TestTwoFactorSubmitOutsidePending(t *testing.T) {
	f := newTwoFactor(t)

	_, err := f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrNoPendingChallenge)

	require.ErrorIs(t, f.tf.Resend(context.Background()), entities.ErrNoPendingChallenge)
}

func TestTwoFactorMalformedCode(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := f.tf.Submit(context.Background(), code)
		require.ErrorIs(t, err, entities.ErrMalformedCode, code)
	}
	assert.Equal(t, 5, f.tf.Snapshot().RemainingAttempts)
	f.api.AssertNotCalled(t, "VerifyTwoFactor", mock.Anything, mock.Anything, mock.Anything)
}

func TestTwoFactorSubmitSuccess(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").Return(authenticated("a1"), nil).Once()

	result, err := f.tf.Submit(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "a1", result.Tokens.AccessToken)
	assert.Equal(t, app.TwoFactorVerified, f.tf.Snapshot().State)
	assert.Zero(t, f.clock.Pending())

	_, err = f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrNoPendingChallenge)
}

func TestTwoFactorPasteAutoSubmitsOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 50; i++ {
		code := fmt.Sprintf("%06d", rng.Intn(1000000))
		focus := rng.Intn(app.CodeLength)

		t.Run(code, func(t *testing.T) {
			f := newTwoFactor(t)
			f.tf.Begin(challenge)
			f.api.On("VerifyTwoFactor", mock.Anything, challenge, code).Return(authenticated("a1"), nil).Once()

			require.True(t, f.tf.FocusSlot(focus))
			require.True(t, f.tf.Paste(code))

			f.clock.Advance(99 * time.Millisecond)
			f.api.AssertNotCalled(t, "VerifyTwoFactor", mock.Anything, mock.Anything, mock.Anything)

			f.clock.Advance(time.Millisecond)
			f.api.AssertNumberOfCalls(t, "VerifyTwoFactor", 1)
			require.Len(t, f.hooks.verified, 1)
			assert.Equal(t, "a1", f.hooks.verified[0].Tokens.AccessToken)

			f.clock.Advance(time.Second)
			f.api.AssertNumberOfCalls(t, "VerifyTwoFactor", 1)
		})
	}
}

func TestTwoFactorTypingRestartsDebounce(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123450").Return(authenticated("a1"), nil).Once()

	require.True(t, f.tf.Paste("123456"))
	f.clock.Advance(50 * time.Millisecond)
	require.True(t, f.tf.TypeDigit('0'))

	f.clock.Advance(50 * time.Millisecond)
	f.api.AssertNotCalled(t, "VerifyTwoFactor", mock.Anything, mock.Anything, mock.Anything)

	f.clock.Advance(50 * time.Millisecond)
	f.api.AssertNumberOfCalls(t, "VerifyTwoFactor", 1)
}

func TestTwoFactorSingleSubmissionInFlight(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(authenticated("a1"), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.tf.Submit(context.Background(), "123456")
		done <- err
	}()
	<-entered

	assert.True(t, f.tf.Snapshot().Submitting)

	_, err := f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrRequestInFlight)

	// Заполненный ввод во время проверки не взводит автоотправку.
	require.True(t, f.tf.Paste("654321"))
	assert.Equal(t, 1, f.clock.Pending())

	close(release)
	require.NoError(t, <-done)
	f.api.AssertNumberOfCalls(t, "VerifyTwoFactor", 1)
}

func TestTwoFactorAttemptsAreMonotonic(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "000000").
		Return(entities.Authenticated{}, &entities.InvalidCodeError{RemainingAttempts: -1}).Times(5)

	for want := 4; want >= 0; want-- {
		_, err := f.tf.Submit(context.Background(), "000000")

		var invalid *entities.InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, want, invalid.RemainingAttempts)
		assert.Equal(t, want, f.tf.Snapshot().RemainingAttempts)
	}

	assert.Equal(t, app.TwoFactorExhausted, f.tf.Snapshot().State)

	_, err := f.tf.Submit(context.Background(), "000000")
	require.ErrorIs(t, err, entities.ErrTooManyAttempts)
	f.api.AssertNumberOfCalls(t, "VerifyTwoFactor", 5)
}

func TestTwoFactorServerReportedAttempts(t *testing.T) {
	tests := []struct {
		name     string
		reported []int
		want     []int
	}{
		{name: "lower count is adopted", reported: []int{2}, want: []int{2}},
		{name: "higher count never raises", reported: []int{4, 9}, want: []int{4, 4}},
		{name: "omitted count decrements", reported: []int{-1, -1}, want: []int{4, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTwoFactor(t)
			f.tf.Begin(challenge)
			for _, n := range tt.reported {
				f.api.On("VerifyTwoFactor", mock.Anything, challenge, "000000").
					Return(entities.Authenticated{}, &entities.InvalidCodeError{RemainingAttempts: n}).Once()
			}

			for i := range tt.reported {
				_, err := f.tf.Submit(context.Background(), "000000")
				require.ErrorIs(t, err, entities.ErrInvalidCode)
				assert.Equal(t, tt.want[i], f.tf.Snapshot().RemainingAttempts)
			}
		})
	}
}

func TestTwoFactorInvalidCodeClearsInput(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "111111").
		Return(entities.Authenticated{}, &entities.InvalidCodeError{RemainingAttempts: 4}).Once()

	require.True(t, f.tf.Paste("111111"))
	f.clock.Advance(app.DefaultSubmitDebounce)

	require.Len(t, f.hooks.rejected, 1)
	require.ErrorIs(t, f.hooks.rejected[0], entities.ErrInvalidCode)

	snapshot := f.tf.Snapshot()
	assert.Equal(t, [app.CodeLength]string{}, snapshot.Digits)
	assert.Equal(t, 0, snapshot.Focus)
	assert.Equal(t, app.TwoFactorPending, snapshot.State)
}

func TestTwoFactorExpiry(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)

	f.clock.Advance(5*time.Minute - time.Second)
	assert.Equal(t, time.Second, f.tf.Snapshot().ExpiresIn)
	assert.Empty(t, f.hooks.reloginReasons())

	f.clock.Advance(time.Second)
	reasons := f.hooks.reloginReasons()
	require.Len(t, reasons, 1)
	require.ErrorIs(t, reasons[0], entities.ErrChallengeExpired)
	assert.Equal(t, app.TwoFactorExpired, f.tf.Snapshot().State)

	_, err := f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrChallengeExpired)
	require.ErrorIs(t, f.tf.Resend(context.Background()), entities.ErrChallengeExpired)

	f.clock.Advance(time.Hour)
	assert.Len(t, f.hooks.reloginReasons(), 1)
	f.api.AssertNotCalled(t, "VerifyTwoFactor", mock.Anything, mock.Anything, mock.Anything)
}

func TestTwoFactorResponseAfterExpiryIsDiscarded(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(authenticated("late"), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.tf.Submit(context.Background(), "123456")
		done <- err
	}()
	<-entered

	f.clock.Advance(5 * time.Minute)
	close(release)

	require.ErrorIs(t, <-done, entities.ErrChallengeExpired)
	assert.Equal(t, app.TwoFactorExpired, f.tf.Snapshot().State)
	assert.Len(t, f.hooks.reloginReasons(), 1)
}

func TestTwoFactorServerExpiredChallenge(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").
		Return(entities.Authenticated{}, entities.ErrChallengeExpired).Once()

	_, err := f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrChallengeExpired)
	assert.Equal(t, app.TwoFactorExpired, f.tf.Snapshot().State)
	assert.Len(t, f.hooks.reloginReasons(), 1)
	assert.Zero(t, f.clock.Pending())
}

func TestTwoFactorResendCooldown(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("ResendTwoFactorCode", mock.Anything, challenge).Return(nil).Twice()
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "000000").
		Return(entities.Authenticated{}, &entities.InvalidCodeError{RemainingAttempts: 4}).Once()

	_, err := f.tf.Submit(context.Background(), "000000")
	require.Error(t, err)

	require.NoError(t, f.tf.Resend(context.Background()))
	assert.Equal(t, 60*time.Second, f.tf.Snapshot().ResendIn)

	f.clock.Advance(30 * time.Second)
	err = f.tf.Resend(context.Background())
	var cooldown *entities.ResendCooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 30*time.Second, cooldown.Remaining)
	f.api.AssertNumberOfCalls(t, "ResendTwoFactorCode", 1)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.tf.Resend(context.Background()))
	f.api.AssertNumberOfCalls(t, "ResendTwoFactorCode", 2)

	snapshot := f.tf.Snapshot()
	assert.Equal(t, 4, snapshot.RemainingAttempts)
	assert.Equal(t, startTime.Add(5*time.Minute), snapshot.ExpiresAt)
}

func TestTwoFactorFailedResendStartsNoCooldown(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("ResendTwoFactorCode", mock.Anything, challenge).Return(entities.ErrNetworkFailure).Once()
	f.api.On("ResendTwoFactorCode", mock.Anything, challenge).Return(nil).Once()

	require.ErrorIs(t, f.tf.Resend(context.Background()), entities.ErrNetworkFailure)
	assert.Zero(t, f.tf.Snapshot().ResendIn)

	require.NoError(t, f.tf.Resend(context.Background()))
}

func TestTwoFactorLockout(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").
		Return(entities.Authenticated{}, entities.ErrTooManyAttempts).Once()

	_, err := f.tf.Submit(context.Background(), "123456")
	require.ErrorIs(t, err, entities.ErrTooManyAttempts)

	snapshot := f.tf.Snapshot()
	assert.Equal(t, app.TwoFactorExhausted, snapshot.State)
	assert.Zero(t, snapshot.RemainingAttempts)

	f.clock.Advance(app.DefaultLockoutGrace - time.Millisecond)
	assert.Empty(t, f.hooks.reloginReasons())

	f.clock.Advance(time.Millisecond)
	reasons := f.hooks.reloginReasons()
	require.Len(t, reasons, 1)
	require.ErrorIs(t, reasons[0], entities.ErrTooManyAttempts)
	assert.Zero(t, f.clock.Pending())
}

func TestTwoFactorRateLimitedResendEndsChallenge(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("ResendTwoFactorCode", mock.Anything, challenge).
		Return(&entities.RateLimitedError{RetryAfter: 30 * time.Second}).Once()

	err := f.tf.Resend(context.Background())
	var rateLimited *entities.RateLimitedError
	require.True(t, errors.As(err, &rateLimited))
	assert.Equal(t, 30*time.Second, rateLimited.RetryAfter)

	assert.Equal(t, app.TwoFactorExhausted, f.tf.Snapshot().State)
	assert.False(t, f.tf.TypeDigit('1'))
	require.ErrorIs(t, f.tf.Resend(context.Background()), entities.ErrTooManyAttempts)

	f.clock.Advance(app.DefaultLockoutGrace)
	reasons := f.hooks.reloginReasons()
	require.Len(t, reasons, 1)
	require.ErrorIs(t, reasons[0], entities.ErrTooManyAttempts)
	f.api.AssertNumberOfCalls(t, "ResendTwoFactorCode", 1)
}

func TestTwoFactorThrottledVerifyKeepsWaitTime(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	f.api.On("VerifyTwoFactor", mock.Anything, challenge, "123456").
		Return(entities.Authenticated{}, &entities.TooManyAttemptsError{RetryAfter: time.Minute}).Once()

	_, err := f.tf.Submit(context.Background(), "123456")
	var locked *entities.TooManyAttemptsError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, time.Minute, locked.RetryAfter)
	assert.Equal(t, app.TwoFactorExhausted, f.tf.Snapshot().State)

	f.clock.Advance(app.DefaultLockoutGrace)
	require.Len(t, f.hooks.reloginReasons(), 1)
}

func TestTwoFactorCancelStopsTimers(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin(challenge)
	require.True(t, f.tf.Paste("123456"))
	require.Equal(t, 2, f.clock.Pending())

	f.tf.Cancel()

	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, app.TwoFactorIdle, f.tf.Snapshot().State)
	assert.False(t, f.tf.TypeDigit('1'))

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.hooks.reloginReasons())
	f.api.AssertNotCalled(t, "VerifyTwoFactor", mock.Anything, mock.Anything, mock.Anything)
}

func TestTwoFactorBeginReplacesChallenge(t *testing.T) {
	f := newTwoFactor(t)
	f.tf.Begin("first")
	f.clock.Advance(4 * time.Minute)

	f.tf.Begin("second")
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(2 * time.Minute)
	assert.Empty(t, f.hooks.reloginReasons())
	assert.Equal(t, 3*time.Minute, f.tf.Snapshot().ExpiresIn)
}

func TestTwoFactorResyncAfterSleep(t *testing.T) {
	t.Run("deadline passed during sleep", func(t *testing.T) {
		f := newTwoFactor(t)
		f.tf.Begin(challenge)

		f.clock.Jump(6 * time.Minute)
		assert.Empty(t, f.hooks.reloginReasons())

		f.tf.Resync()
		require.Len(t, f.hooks.reloginReasons(), 1)
		assert.Equal(t, app.TwoFactorExpired, f.tf.Snapshot().State)
	})

	t.Run("deadline still ahead", func(t *testing.T) {
		f := newTwoFactor(t)
		f.tf.Begin(challenge)

		f.clock.Jump(2 * time.Minute)
		f.tf.Resync()
		assert.Equal(t, 3*time.Minute, f.tf.Snapshot().ExpiresIn)

		f.clock.Advance(3*time.Minute - time.Millisecond)
		assert.Empty(t, f.hooks.reloginReasons())
		f.clock.Advance(time.Millisecond)
		assert.Len(t, f.hooks.reloginReasons(), 1)
	})

	t.Run("submit after sleep sees expiry", func(t *testing.T) {
		f := newTwoFactor(t)
		f.tf.Begin(challenge)
		f.clock.Jump(10 * time.Minute)

		_, err := f.tf.Submit(context.Background(), "123456")
		require.True(t, errors.Is(err, entities.ErrChallengeExpired))
		assert.Len(t, f.hooks.reloginReasons(), 1)
	})
}
