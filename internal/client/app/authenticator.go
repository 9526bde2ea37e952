package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/internal/client/ports/api"
	"authkeeper/internal/client/ports/events"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodLogin        = "login"
	LogMethodVerify       = "verify_two_factor"
	LogMethodLogout       = "logout"
	LogMethodUnauthorized = "handle_unauthorized"

	ErrorEstablishSession = "failed to establish session"
	ErrorEndSession       = "failed to end session"
)

// Config объединяет настройки ядра.
type Config struct {
	Session   SessionConfig
	TwoFactor TwoFactorConfig
}

// DefaultConfig возвращает настройки ядра по умолчанию.
func DefaultConfig() Config {
	return Config{
		Session:   DefaultSessionConfig(),
		TwoFactor: DefaultTwoFactorConfig(),
	}
}

// AuthenticatorHooks уведомляют оболочку интерфейса о событиях, которые происходят
// без ее вызова: автоотправка кода и требование повторного входа.
type AuthenticatorHooks struct {
	Authenticated     func(user entities.User)
	TwoFactorRejected func(err error)
	ReloginRequired   func(reason error)
}

// Authenticator координирует вход: обмен учетных данных, второй фактор, установку
// сессии в хранилище токенов и менеджере сессии, выход и восстановление.
type Authenticator struct {
	api       api.AuthAPI
	store     *TokenStore
	session   *SessionManager
	twoFactor *TwoFactor
	hooks     AuthenticatorHooks

	mu            sync.Mutex
	loginInFlight bool
	pendingMode   entities.PersistenceMode
}

// NewAuthenticator собирает ядро вокруг store.
func NewAuthenticator(
	ctx context.Context,
	cfg Config,
	authAPI api.AuthAPI,
	store *TokenStore,
	publisher events.Publisher,
	clk clock.Clock,
	hooks AuthenticatorHooks,
) *Authenticator {
	a := &Authenticator{
		api:   authAPI,
		store: store,
		hooks: hooks,
	}
	a.session = NewSessionManager(ctx, cfg.Session, store, authAPI, publisher, clk)
	a.twoFactor = NewTwoFactor(ctx, cfg.TwoFactor, authAPI, clk, TwoFactorHooks{
		Verified:        a.onTwoFactorVerified,
		Rejected:        a.onTwoFactorRejected,
		ReloginRequired: a.onReloginRequired,
	})
	return a
}

// Session возвращает менеджер сессии.
func (a *Authenticator) Session() *SessionManager {
	return a.session
}

// TwoFactor возвращает машину второго фактора.
func (a *Authenticator) TwoFactor() *TwoFactor {
	return a.twoFactor
}

// Store возвращает хранилище токенов.
func (a *Authenticator) Store() *TokenStore {
	return a.store
}

// Login выполняет вход. RequiresTwoFactor запускает проверку второго фактора, токены
// при этом не сохраняются. Authenticated сразу устанавливает сессию. Одновременно
// выполняется только один вход.
func (a *Authenticator) Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodLogin))

	a.mu.Lock()
	if a.loginInFlight {
		a.mu.Unlock()
		return entities.LoginOutcome{}, entities.ErrRequestInFlight
	}
	a.loginInFlight = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.loginInFlight = false
		a.mu.Unlock()
	}()

	outcome, err := a.api.Login(ctx, creds)
	if err != nil {
		return entities.LoginOutcome{}, err
	}

	mode := entities.ModeFor(creds.RememberMe)

	if outcome.RequiresTwoFactor() {
		a.mu.Lock()
		a.pendingMode = mode
		a.mu.Unlock()

		a.twoFactor.Begin(outcome.ChallengeToken)
		log.Info(ctx, "login requires two-factor verification")
		return outcome, nil
	}

	a.twoFactor.Cancel()
	a.establish(ctx, mode, *outcome.Authenticated)
	return outcome, nil
}

// VerifyTwoFactor отправляет код и при успехе устанавливает сессию в режиме,
// выбранном при входе.
func (a *Authenticator) VerifyTwoFactor(ctx context.Context, code string) (entities.Authenticated, error) {
	authenticated, err := a.twoFactor.Submit(ctx, code)
	if err != nil {
		return entities.Authenticated{}, err
	}

	a.establish(ctx, a.currentPendingMode(), authenticated)
	return authenticated, nil
}

// ResendTwoFactorCode запрашивает новый код.
func (a *Authenticator) ResendTwoFactorCode(ctx context.Context) error {
	return a.twoFactor.Resend(ctx)
}

// CancelTwoFactor отменяет ожидающую проверку.
func (a *Authenticator) CancelTwoFactor() {
	a.twoFactor.Cancel()
}

// Logout завершает сессию локально и затем уведомляет сервис. Ошибка сети
// при уведомлении проглатывается: локальный выход происходит всегда.
func (a *Authenticator) Logout(ctx context.Context) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodLogout))

	accessToken, _ := a.store.AccessToken()
	a.twoFactor.Cancel()

	err := a.session.End(ctx, false)
	if err != nil {
		log.Error(ctx, ErrorEndSession, zap.Error(err))
	}

	if accessToken != "" {
		if logoutErr := a.api.Logout(ctx, accessToken); logoutErr != nil {
			log.Debug(ctx, ErrorRemoteLogout, zap.Error(logoutErr))
		}
	}
	return err
}

// Restore восстанавливает сохраненную сессию и запускает менеджер сессии в ее режиме.
func (a *Authenticator) Restore(ctx context.Context) (bool, error) {
	ok, err := a.store.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	a.session.Start(a.store.Mode())
	return true, nil
}

// HandleUnauthorized вызывается транспортом, когда сервис окончательно отказал
// в авторизации: повторный 401 после обновления токена или неудачное обновление.
func (a *Authenticator) HandleUnauthorized(ctx context.Context, cause error) {
	reason := ReasonUnauthorized
	if errors.Is(cause, entities.ErrRefreshInvalid) {
		reason = "refresh_invalid"
	}

	if a.session.Revoke(ctx, reason) {
		logger.Log(ctx).Warn(ctx, "session revoked", zap.String("method", LogMethodUnauthorized), zap.Error(cause))
		if a.hooks.ReloginRequired != nil {
			a.hooks.ReloginRequired(cause)
		}
	}
}

func (a *Authenticator) establish(ctx context.Context, mode entities.PersistenceMode, authenticated entities.Authenticated) {
	if err := a.store.Establish(ctx, mode, authenticated.Tokens, authenticated.User); err != nil {
		logger.Log(ctx).Warn(ctx, ErrorEstablishSession, zap.Error(err))
	}
	a.session.Start(mode)

	if a.hooks.Authenticated != nil {
		a.hooks.Authenticated(authenticated.User)
	}
}

func (a *Authenticator) currentPendingMode() entities.PersistenceMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingMode
}

func (a *Authenticator) onTwoFactorVerified(ctx context.Context, authenticated entities.Authenticated) {
	a.establish(ctx, a.currentPendingMode(), authenticated)
}

func (a *Authenticator) onTwoFactorRejected(_ context.Context, err error) {
	if a.hooks.TwoFactorRejected != nil {
		a.hooks.TwoFactorRejected(err)
	}
}

func (a *Authenticator) onReloginRequired(_ context.Context, reason error) {
	if a.hooks.ReloginRequired != nil {
		a.hooks.ReloginRequired(reason)
	}
}
