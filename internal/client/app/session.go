package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/internal/client/ports/events"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogSessionStarted  = "session started"
	LogSessionWarning  = "session inactivity warning"
	LogSessionExpired  = "session expired"
	LogSessionEnded    = "session ended"
	LogSessionExtended = "session extended"
	LogSessionRevoked  = "session revoked"

	ErrorClearTokens  = "failed to clear token store"
	ErrorRemoteLogout = "remote logout failed"
)

// Причины завершения сессии в событиях.
const (
	ReasonInactivity   = "inactivity"
	ReasonUnauthorized = "unauthorized"
)

// SessionState - состояние менеджера сессии.
type SessionState int

// Состояния менеджера сессии.
const (
	SessionInactive SessionState = iota
	SessionActive
	SessionWarning
	SessionExpired
	SessionLoggedOut
)

func (s SessionState) String() string {
	switch s {
	case SessionInactive:
		return "inactive"
	case SessionActive:
		return "active"
	case SessionWarning:
		return "warning"
	case SessionExpired:
		return "expired"
	case SessionLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Live сообщает, что сессия установлена и не завершена.
func (s SessionState) Live() bool {
	return s == SessionActive || s == SessionWarning
}

// SessionStore - то, что менеджер очищает при завершении сессии.
type SessionStore interface {
	AccessToken() (string, bool)
	Clear(ctx context.Context) error
}

// RemoteLogout - best-effort уведомление сервиса о выходе.
type RemoteLogout interface {
	Logout(ctx context.Context, accessToken string) error
}

// SessionSnapshot - состояние для отображения.
type SessionSnapshot struct {
	State     SessionState
	Mode      entities.PersistenceMode
	Clock     entities.SessionClock
	Remaining time.Duration
}

// SessionManager следит за бездействием установленной сессии.
// Ephemeral: таймер предупреждения (timeout - WarningLead) и таймер истечения от
// последней активности. Durable: таймеры не запускаются.
// Дедлайны абсолютные; колбэки устаревших таймеров отбрасываются по epoch.
type SessionManager struct {
	ctx       context.Context
	cfg       SessionConfig
	store     SessionStore
	remote    RemoteLogout
	publisher events.Publisher
	clock     clock.Clock

	mu           sync.Mutex
	state        SessionState
	mode         entities.PersistenceMode
	timeout      time.Duration
	sessionClock entities.SessionClock
	epoch        uint64

	warningTimer clock.Timer
	expiryTimer  clock.Timer
}

// NewSessionManager создает менеджер в состоянии Inactive. ctx используется таймерами.
func NewSessionManager(ctx context.Context, cfg SessionConfig, store SessionStore, remote RemoteLogout, publisher events.Publisher, clk clock.Clock) *SessionManager {
	return &SessionManager{
		ctx:       context.WithoutCancel(ctx),
		cfg:       cfg,
		store:     store,
		remote:    remote,
		publisher: publisher,
		clock:     clk,
	}
}

// Start переводит менеджер в Active для режима mode. Прежние таймеры отменяются.
func (m *SessionManager) Start(mode entities.PersistenceMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimersLocked()
	m.epoch++
	m.state = SessionActive
	m.mode = mode
	m.timeout = m.cfg.Timeout(mode == entities.Durable)
	m.resetClockLocked(m.clock.Now())
	m.scheduleLocked()

	logger.Log(m.ctx).Info(m.ctx, LogSessionStarted,
		zap.Stringer("mode", mode),
		zap.Duration("timeout", m.timeout))
}

// RecordActivity продлевает Active-сессию от текущего момента. В Warning активность
// игнорируется: продлить сессию после предупреждения можно только через Extend.
// Если предупреждение или истечение уже просрочены по настенным часам, они
// срабатывают вместо продления. Возвращает true, если сессия продлена.
func (m *SessionManager) RecordActivity(kind entities.ActivityKind) bool {
	if !kind.Qualifying() {
		return false
	}

	m.mu.Lock()
	if m.state != SessionActive {
		m.mu.Unlock()
		return false
	}

	now := m.clock.Now()
	if m.mode == entities.Durable {
		m.resetClockLocked(now)
		m.mu.Unlock()
		return true
	}

	if after := m.overdueLocked(now); after != nil {
		m.mu.Unlock()
		after()
		return false
	}

	m.stopTimersLocked()
	m.epoch++
	m.resetClockLocked(now)
	m.scheduleLocked()
	m.mu.Unlock()
	return true
}

// Extend - явный ответ пользователя на предупреждение. Допустим только в Warning:
// возвращает сессию в Active и перезапускает оба таймера. Вне Warning ничего не делает.
func (m *SessionManager) Extend() bool {
	m.mu.Lock()
	if m.state != SessionWarning {
		m.mu.Unlock()
		return false
	}

	now := m.clock.Now()
	if !now.Before(m.sessionClock.ExpiresAt) {
		after := m.expireLocked(now)
		m.mu.Unlock()
		after()
		return false
	}

	m.stopTimersLocked()
	m.epoch++
	m.state = SessionActive
	m.resetClockLocked(now)
	m.scheduleLocked()
	expiresAt := m.sessionClock.ExpiresAt
	m.mu.Unlock()

	logger.Log(m.ctx).Info(m.ctx, LogSessionExtended, zap.Time("expires_at", expiresAt))
	return true
}

// End завершает сессию из любого состояния: отменяет таймеры и очищает хранилище
// токенов. session-timeout публикуется только при isTimeout, поэтому добровольный
// выход не попадает в сценарий истечения.
func (m *SessionManager) End(ctx context.Context, isTimeout bool) error {
	m.mu.Lock()
	m.stopTimersLocked()
	m.epoch++
	if isTimeout {
		m.state = SessionExpired
	} else {
		m.state = SessionLoggedOut
	}
	expiresAt := m.sessionClock.ExpiresAt
	err := m.clearStoreLocked(ctx)
	m.mu.Unlock()

	logger.Log(ctx).Info(ctx, LogSessionEnded, zap.Bool("timeout", isTimeout))

	if isTimeout {
		m.publish(entities.TopicSessionTimeout, expiresAt, ReasonInactivity)
	}
	return err
}

// Revoke завершает живую сессию после окончательного отказа в авторизации и
// публикует session-revoked. Для уже завершенной сессии ничего не делает.
func (m *SessionManager) Revoke(ctx context.Context, reason string) bool {
	m.mu.Lock()
	if !m.state.Live() {
		m.mu.Unlock()
		return false
	}
	m.stopTimersLocked()
	m.epoch++
	m.state = SessionLoggedOut
	expiresAt := m.sessionClock.ExpiresAt
	_ = m.clearStoreLocked(ctx)
	m.mu.Unlock()

	logger.Log(ctx).Warn(ctx, LogSessionRevoked, zap.String("reason", reason))
	m.publish(entities.TopicSessionRevoked, expiresAt, reason)
	return true
}

// Resync пересчитывает таймеры по настенным часам после сна хоста:
// просроченные предупреждение и истечение срабатывают сразу.
func (m *SessionManager) Resync() {
	m.mu.Lock()
	if !m.state.Live() || m.mode == entities.Durable {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	if after := m.overdueLocked(now); after != nil {
		m.mu.Unlock()
		after()
		return
	}

	m.stopTimersLocked()
	m.epoch++
	m.scheduleLocked()
	m.mu.Unlock()
}

// Snapshot возвращает текущее состояние.
func (m *SessionManager) Snapshot() SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := SessionSnapshot{
		State: m.state,
		Mode:  m.mode,
		Clock: m.sessionClock,
	}
	if m.state.Live() {
		snapshot.Remaining = m.sessionClock.Remaining(m.clock.Now())
	}
	return snapshot
}

// Close отменяет все таймеры, не трогая хранилище: сохраненная сессия может быть восстановлена.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimersLocked()
	m.epoch++
	m.state = SessionInactive
}

func (m *SessionManager) resetClockLocked(now time.Time) {
	m.sessionClock = entities.SessionClock{
		LastActivityAt: now,
		ExpiresAt:      now.Add(m.timeout),
	}
}

func (m *SessionManager) warningAtLocked() (time.Time, bool) {
	if m.cfg.WarningLead <= 0 || m.cfg.WarningLead >= m.timeout {
		return time.Time{}, false
	}
	return m.sessionClock.ExpiresAt.Add(-m.cfg.WarningLead), true
}

// scheduleLocked ставит таймеры от текущего момента до абсолютных дедлайнов.
func (m *SessionManager) scheduleLocked() {
	if m.mode == entities.Durable {
		return
	}

	now := m.clock.Now()
	epoch := m.epoch

	if warningAt, ok := m.warningAtLocked(); ok && m.state == SessionActive {
		m.warningTimer = m.clock.AfterFunc(warningAt.Sub(now), func() { m.onWarning(epoch) })
	}
	m.expiryTimer = m.clock.AfterFunc(m.sessionClock.ExpiresAt.Sub(now), func() { m.onExpiry(epoch) })
}

// overdueLocked срабатывает просроченные истечение или предупреждение; после
// предупреждения таймер истечения ставится заново. Возвращает nil, если ничего не просрочено.
func (m *SessionManager) overdueLocked(now time.Time) func() {
	if !now.Before(m.sessionClock.ExpiresAt) {
		return m.expireLocked(now)
	}
	if warningAt, ok := m.warningAtLocked(); ok && m.state == SessionActive && !now.Before(warningAt) {
		after := m.warnLocked(now)
		stopTimer(&m.expiryTimer)
		m.epoch++
		m.scheduleLocked()
		return after
	}
	return nil
}

func (m *SessionManager) onWarning(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != SessionActive {
		m.mu.Unlock()
		return
	}
	m.warningTimer = nil

	now := m.clock.Now()
	after := m.overdueLocked(now)
	if after == nil {
		stopTimer(&m.warningTimer)
		m.scheduleWarningLocked(now)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	after()
}

func (m *SessionManager) scheduleWarningLocked(now time.Time) {
	if warningAt, ok := m.warningAtLocked(); ok {
		epoch := m.epoch
		m.warningTimer = m.clock.AfterFunc(warningAt.Sub(now), func() { m.onWarning(epoch) })
	}
}

func (m *SessionManager) onExpiry(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.state.Live() {
		m.mu.Unlock()
		return
	}
	m.expiryTimer = nil

	now := m.clock.Now()
	if now.Before(m.sessionClock.ExpiresAt) {
		m.expiryTimer = m.clock.AfterFunc(m.sessionClock.ExpiresAt.Sub(now), func() { m.onExpiry(epoch) })
		m.mu.Unlock()
		return
	}

	after := m.expireLocked(now)
	m.mu.Unlock()
	after()
}

// warnLocked переводит сессию в Warning, не трогая таймер истечения.
func (m *SessionManager) warnLocked(now time.Time) func() {
	stopTimer(&m.warningTimer)
	m.state = SessionWarning
	firedAt := now
	m.sessionClock.WarningFiredAt = &firedAt
	expiresAt := m.sessionClock.ExpiresAt

	return func() {
		logger.Log(m.ctx).Info(m.ctx, LogSessionWarning, zap.Time("expires_at", expiresAt))
		m.publish(entities.TopicSessionWarning, expiresAt, ReasonInactivity)
	}
}

// expireLocked переводит сессию в Expired и синхронно очищает хранилище токенов.
// Возвращенная функция публикует session-timeout и выполняет удаленный logout.
func (m *SessionManager) expireLocked(now time.Time) func() {
	m.stopTimersLocked()
	m.epoch++
	m.state = SessionExpired
	expiresAt := m.sessionClock.ExpiresAt

	accessToken, _ := m.store.AccessToken()
	_ = m.clearStoreLocked(m.ctx)

	return func() {
		logger.Log(m.ctx).Info(m.ctx, LogSessionExpired,
			zap.Time("expires_at", expiresAt),
			zap.Duration("overdue", now.Sub(expiresAt)))
		m.publish(entities.TopicSessionTimeout, expiresAt, ReasonInactivity)
		m.remoteLogout(accessToken)
	}
}

func (m *SessionManager) clearStoreLocked(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		logger.Log(ctx).Error(ctx, ErrorClearTokens, zap.Error(err))
		return err
	}
	return nil
}

func (m *SessionManager) remoteLogout(accessToken string) {
	if accessToken == "" || m.remote == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.LogoutTimeout)
	defer cancel()

	if err := m.remote.Logout(ctx, accessToken); err != nil {
		logger.Log(m.ctx).Debug(m.ctx, ErrorRemoteLogout, zap.Error(err))
	}
}

func (m *SessionManager) publish(topic string, expiresAt time.Time, reason string) {
	m.publisher.Publish(topic, entities.SessionEvent{
		Topic:     topic,
		At:        m.clock.Now(),
		ExpiresAt: expiresAt,
		Reason:    reason,
	})
}

func (m *SessionManager) stopTimersLocked() {
	stopTimer(&m.warningTimer)
	stopTimer(&m.expiryTimer)
}
