package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodBegin  = "two_factor_begin"
	LogMethodSubmit = "two_factor_submit"
	LogMethodResend = "two_factor_resend"

	LogChallengeStarted   = "two-factor challenge started"
	LogChallengeExpired   = "two-factor challenge expired"
	LogChallengeExhausted = "two-factor attempts exhausted"
	LogChallengeVerified  = "two-factor challenge verified"
	LogResponseDiscarded  = "two-factor response discarded"
)

// TwoFactorState - состояние машины второго фактора.
type TwoFactorState int

// Состояния машины второго фактора.
const (
	TwoFactorIdle TwoFactorState = iota
	TwoFactorPending
	TwoFactorVerified
	TwoFactorExpired
	TwoFactorExhausted
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorIdle:
		return "idle"
	case TwoFactorPending:
		return "pending"
	case TwoFactorVerified:
		return "verified"
	case TwoFactorExpired:
		return "expired"
	case TwoFactorExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// TwoFactorVerifier - вызовы сервиса, нужные машине второго фактора.
type TwoFactorVerifier interface {
	VerifyTwoFactor(ctx context.Context, challengeToken, code string) (entities.Authenticated, error)
	ResendTwoFactorCode(ctx context.Context, challengeToken string) error
}

// TwoFactorHooks получают исходы, которые машина достигает сама: автоотправку
// кода, истечение challenge и окончание паузы после блокировки.
type TwoFactorHooks struct {
	Verified        func(ctx context.Context, authenticated entities.Authenticated)
	Rejected        func(ctx context.Context, err error)
	ReloginRequired func(ctx context.Context, reason error)
}

// TwoFactorSnapshot - состояние для отображения.
type TwoFactorSnapshot struct {
	State             TwoFactorState
	RemainingAttempts int
	ExpiresAt         time.Time
	ExpiresIn         time.Duration
	ResendAvailableAt time.Time
	ResendIn          time.Duration
	Submitting        bool
	Digits            [CodeLength]string
	Focus             int
}

// TwoFactor - машина состояний Idle -> Pending -> {Verified | Expired | Exhausted}.
// Срок challenge отсчитывается от абсолютного ExpiresAt. Одновременно выполняется
// не больше одной проверки кода; ответы, пришедшие после смены состояния, отбрасываются.
type TwoFactor struct {
	ctx   context.Context
	cfg   TwoFactorConfig
	api   TwoFactorVerifier
	clock clock.Clock
	hooks TwoFactorHooks

	mu         sync.Mutex
	state      TwoFactorState
	pending    entities.PendingTwoFactor
	input      CodeInput
	submitting bool
	resending  bool
	epoch      uint64

	expiry   clock.Timer
	debounce clock.Timer
	grace    clock.Timer
}

// NewTwoFactor создает машину в состоянии Idle. ctx используется для автоотправки и хуков.
func NewTwoFactor(ctx context.Context, cfg TwoFactorConfig, verifier TwoFactorVerifier, clk clock.Clock, hooks TwoFactorHooks) *TwoFactor {
	return &TwoFactor{
		ctx:   context.WithoutCancel(ctx),
		cfg:   cfg,
		api:   verifier,
		clock: clk,
		hooks: hooks,
	}
}

// Begin начинает проверку challengeToken: полный запас попыток и абсолютный срок ChallengeTTL.
// Предыдущий challenge и все его таймеры отменяются.
func (t *TwoFactor) Begin(challengeToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()

	now := t.clock.Now()
	t.state = TwoFactorPending
	t.pending = entities.PendingTwoFactor{
		ChallengeToken:    challengeToken,
		RemainingAttempts: t.cfg.MaxAttempts,
		ExpiresAt:         now.Add(t.cfg.ChallengeTTL),
		ResendAvailableAt: now,
	}
	t.scheduleExpiryLocked(t.cfg.ChallengeTTL)

	logger.Log(t.ctx).Info(t.ctx, LogChallengeStarted,
		zap.String("method", LogMethodBegin),
		zap.Time("expires_at", t.pending.ExpiresAt),
		zap.Int("remaining_attempts", t.pending.RemainingAttempts))
}

// Submit отправляет код. Допустим только в Pending; код из шести цифр проверяется локально,
// исчерпанный запас попыток отклоняется без обращения к сервису.
func (t *TwoFactor) Submit(ctx context.Context, code string) (entities.Authenticated, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodSubmit))

	t.mu.Lock()
	if err := t.pendingErrLocked(); err != nil {
		t.mu.Unlock()
		return entities.Authenticated{}, err
	}
	if t.pending.Expired(t.clock.Now()) {
		after := t.expireLocked()
		t.mu.Unlock()
		after()
		return entities.Authenticated{}, entities.ErrChallengeExpired
	}
	if !ValidCode(code) {
		t.mu.Unlock()
		return entities.Authenticated{}, entities.ErrMalformedCode
	}
	if t.pending.RemainingAttempts <= 0 {
		t.mu.Unlock()
		return entities.Authenticated{}, entities.ErrTooManyAttempts
	}
	if t.submitting {
		t.mu.Unlock()
		return entities.Authenticated{}, entities.ErrRequestInFlight
	}
	t.submitting = true
	stopTimer(&t.debounce)
	epoch, token := t.epoch, t.pending.ChallengeToken
	t.mu.Unlock()

	authenticated, err := t.api.VerifyTwoFactor(ctx, token, code)

	t.mu.Lock()
	if epoch != t.epoch {
		stateErr := t.pendingErrLocked()
		t.mu.Unlock()
		log.Info(ctx, LogResponseDiscarded)
		if stateErr == nil {
			stateErr = entities.ErrNoPendingChallenge
		}
		return entities.Authenticated{}, stateErr
	}
	t.submitting = false

	if err == nil {
		t.stopTimersLocked()
		t.epoch++
		t.state = TwoFactorVerified
		t.pending = entities.PendingTwoFactor{}
		t.input.Clear()
		t.mu.Unlock()
		log.Info(ctx, LogChallengeVerified)
		return authenticated, nil
	}

	after := func() {}
	var invalid *entities.InvalidCodeError
	switch {
	case errors.As(err, &invalid):
		current := t.pending.RemainingAttempts
		remaining := current - 1
		if invalid.RemainingAttempts >= 0 {
			remaining = min(current, invalid.RemainingAttempts)
		}
		remaining = max(remaining, 0)
		t.pending.RemainingAttempts = remaining
		t.input.Clear()
		if remaining == 0 {
			t.exhaustLocked()
		}
		err = &entities.InvalidCodeError{RemainingAttempts: remaining}
	case errors.Is(err, entities.ErrTooManyAttempts), errors.Is(err, entities.ErrRateLimited):
		t.exhaustLocked()
	case errors.Is(err, entities.ErrChallengeExpired):
		after = t.expireLocked()
	}
	state := t.state
	t.mu.Unlock()

	after()
	log.Info(ctx, "two-factor code rejected", zap.Stringer("state", state), zap.Error(err))
	return entities.Authenticated{}, err
}

// Resend запрашивает новый код, если пауза после предыдущей отправки истекла.
// Попытки и срок challenge не меняются.
func (t *TwoFactor) Resend(ctx context.Context) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodResend))

	t.mu.Lock()
	if err := t.pendingErrLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	now := t.clock.Now()
	if t.pending.Expired(now) {
		after := t.expireLocked()
		t.mu.Unlock()
		after()
		return entities.ErrChallengeExpired
	}
	if wait := t.pending.ResendIn(now); wait > 0 {
		t.mu.Unlock()
		return &entities.ResendCooldownError{Remaining: wait}
	}
	if t.resending {
		t.mu.Unlock()
		return entities.ErrRequestInFlight
	}
	t.resending = true
	epoch, token := t.epoch, t.pending.ChallengeToken
	t.mu.Unlock()

	err := t.api.ResendTwoFactorCode(ctx, token)

	t.mu.Lock()
	if epoch != t.epoch {
		stateErr := t.pendingErrLocked()
		t.mu.Unlock()
		if stateErr == nil {
			stateErr = entities.ErrNoPendingChallenge
		}
		return stateErr
	}
	t.resending = false

	after := func() {}
	switch {
	case err == nil:
		t.pending.ResendAvailableAt = now.Add(t.cfg.ResendCooldown)
	case errors.Is(err, entities.ErrRateLimited), errors.Is(err, entities.ErrTooManyAttempts):
		// Троттлинг завершает challenge так же, как исчерпание попыток.
		t.exhaustLocked()
	case errors.Is(err, entities.ErrChallengeExpired):
		after = t.expireLocked()
	}
	t.mu.Unlock()

	after()
	if err != nil {
		log.Warn(ctx, "two-factor code resend failed", zap.Error(err))
		return err
	}
	log.Info(ctx, "two-factor code resent")
	return nil
}

// Cancel отменяет challenge и все его таймеры.
func (t *TwoFactor) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// Resync пересчитывает срок challenge по настенным часам, например после сна хоста.
func (t *TwoFactor) Resync() {
	t.mu.Lock()
	if t.state != TwoFactorPending {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if t.pending.Expired(now) {
		after := t.expireLocked()
		t.mu.Unlock()
		after()
		return
	}
	stopTimer(&t.expiry)
	t.scheduleExpiryLocked(t.pending.ExpiresIn(now))
	t.mu.Unlock()
}

// Snapshot возвращает текущее состояние.
func (t *TwoFactor) Snapshot() TwoFactorSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	snapshot := TwoFactorSnapshot{
		State:             t.state,
		RemainingAttempts: t.pending.RemainingAttempts,
		Submitting:        t.submitting,
		Digits:            t.input.Digits(),
		Focus:             t.input.Focus(),
	}
	if t.state == TwoFactorPending {
		snapshot.ExpiresAt = t.pending.ExpiresAt
		snapshot.ExpiresIn = t.pending.ExpiresIn(now)
		snapshot.ResendAvailableAt = t.pending.ResendAvailableAt
		snapshot.ResendIn = t.pending.ResendIn(now)
	}
	return snapshot
}

// TypeDigit вводит цифру в ячейку под фокусом.
func (t *TwoFactor) TypeDigit(r rune) bool {
	return t.edit(func(in *CodeInput) bool { return in.TypeDigit(r) })
}

// Backspace стирает цифру или переводит фокус назад.
func (t *TwoFactor) Backspace() bool {
	return t.edit(func(in *CodeInput) bool {
		in.Backspace()
		return true
	})
}

// Paste вставляет код целиком.
func (t *TwoFactor) Paste(s string) bool {
	return t.edit(func(in *CodeInput) bool { return in.Paste(s) })
}

// FocusSlot переводит фокус на ячейку i.
func (t *TwoFactor) FocusSlot(i int) bool {
	return t.edit(func(in *CodeInput) bool { return in.FocusSlot(i) })
}

// edit применяет изменение ввода. Заполненный ввод отправляется автоматически
// после SubmitDebounce, если проверка уже не выполняется.
func (t *TwoFactor) edit(fn func(*CodeInput) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TwoFactorPending || !fn(&t.input) {
		return false
	}

	stopTimer(&t.debounce)
	if t.input.Complete() && !t.submitting {
		epoch, code := t.epoch, t.input.Code()
		t.debounce = t.clock.AfterFunc(t.cfg.SubmitDebounce, func() { t.autoSubmit(epoch, code) })
	}
	return true
}

func (t *TwoFactor) autoSubmit(epoch uint64, code string) {
	t.mu.Lock()
	if epoch != t.epoch || t.state != TwoFactorPending || t.submitting || t.input.Code() != code {
		t.mu.Unlock()
		return
	}
	t.debounce = nil
	t.mu.Unlock()

	authenticated, err := t.Submit(t.ctx, code)
	switch {
	case err == nil:
		if t.hooks.Verified != nil {
			t.hooks.Verified(t.ctx, authenticated)
		}
	case errors.Is(err, entities.ErrRequestInFlight):
	default:
		if t.hooks.Rejected != nil {
			t.hooks.Rejected(t.ctx, err)
		}
	}
}

func (t *TwoFactor) onExpiry(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.state != TwoFactorPending {
		t.mu.Unlock()
		return
	}
	t.expiry = nil
	if now := t.clock.Now(); !t.pending.Expired(now) {
		t.scheduleExpiryLocked(t.pending.ExpiresIn(now))
		t.mu.Unlock()
		return
	}
	after := t.expireLocked()
	t.mu.Unlock()
	after()
}

func (t *TwoFactor) onGrace(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.state != TwoFactorExhausted {
		t.mu.Unlock()
		return
	}
	t.grace = nil
	t.mu.Unlock()

	t.reloginRequired(entities.ErrTooManyAttempts)
}

func (t *TwoFactor) scheduleExpiryLocked(d time.Duration) {
	epoch := t.epoch
	t.expiry = t.clock.AfterFunc(d, func() { t.onExpiry(epoch) })
}

// expireLocked переводит машину в Expired и возвращает вызов хука, который
// выполняется после снятия блокировки.
func (t *TwoFactor) expireLocked() func() {
	t.stopTimersLocked()
	t.epoch++
	t.state = TwoFactorExpired
	t.pending.ChallengeToken = ""
	t.submitting = false
	t.resending = false
	t.input.Clear()

	logger.Log(t.ctx).Info(t.ctx, LogChallengeExpired)
	return func() { t.reloginRequired(entities.ErrChallengeExpired) }
}

// exhaustLocked переводит машину в Exhausted; повторный вход требуется после LockoutGrace.
func (t *TwoFactor) exhaustLocked() {
	t.stopTimersLocked()
	t.epoch++
	t.state = TwoFactorExhausted
	t.pending.RemainingAttempts = 0
	t.pending.ChallengeToken = ""
	t.input.Clear()

	epoch := t.epoch
	t.grace = t.clock.AfterFunc(t.cfg.LockoutGrace, func() { t.onGrace(epoch) })

	logger.Log(t.ctx).Info(t.ctx, LogChallengeExhausted)
}

func (t *TwoFactor) resetLocked() {
	t.stopTimersLocked()
	t.epoch++
	t.state = TwoFactorIdle
	t.pending = entities.PendingTwoFactor{}
	t.input.Clear()
	t.submitting = false
	t.resending = false
}

func (t *TwoFactor) stopTimersLocked() {
	stopTimer(&t.expiry)
	stopTimer(&t.debounce)
	stopTimer(&t.grace)
}

func (t *TwoFactor) pendingErrLocked() error {
	switch t.state {
	case TwoFactorPending:
		return nil
	case TwoFactorExpired:
		return entities.ErrChallengeExpired
	case TwoFactorExhausted:
		return entities.ErrTooManyAttempts
	default:
		return entities.ErrNoPendingChallenge
	}
}

func (t *TwoFactor) reloginRequired(reason error) {
	if t.hooks.ReloginRequired != nil {
		t.hooks.ReloginRequired(t.ctx, reason)
	}
}

func stopTimer(timer *clock.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}
