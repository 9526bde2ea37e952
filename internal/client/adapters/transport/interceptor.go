// Package transport содержит http.RoundTripper, который подписывает исходящие
// запросы access-токеном и обновляет его при отказе в авторизации.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodRoundTrip = "round_trip"

	ErrorProactiveRefresh = "proactive token refresh failed"
	ErrorRefreshAfter401  = "token refresh after 401 failed"
	ErrorReplayBody       = "failed to replay request body"
	LogRetryRejected      = "retried request rejected again"
	LogNotReplayable      = "request body cannot be replayed, returning 401"
)

// DefaultRefreshSkew - за сколько до истечения access-токен обновляется заранее.
const DefaultRefreshSkew = 30 * time.Second

// ErrUnauthorized - сервис отверг запрос и после обновления токена.
var ErrUnauthorized = errors.New("request rejected after token refresh")

// TokenSource - хранилище токенов с сериализованным обновлением.
type TokenSource interface {
	AccessToken() (string, bool)
	AccessExpiresAt() time.Time
	Refresh(ctx context.Context, rejected string) (string, error)
}

// UnauthorizedFunc вызывается, когда авторизацию восстановить нельзя.
type UnauthorizedFunc func(ctx context.Context, cause error)

// Config - настройки перехватчика.
type Config struct {
	RefreshSkew time.Duration
}

// Interceptor подставляет Authorization: Bearer, заранее обновляет истекающий токен,
// а на 401 обновляет его и повторяет запрос один раз. Повторный 401 или
// окончательный отказ в обновлении передаются в onUnauthorized.
type Interceptor struct {
	base           http.RoundTripper
	tokens         TokenSource
	clock          clock.Clock
	skew           time.Duration
	onUnauthorized UnauthorizedFunc
}

var _ http.RoundTripper = (*Interceptor)(nil)

// NewInterceptor оборачивает base; nil означает http.DefaultTransport.
func NewInterceptor(base http.RoundTripper, tokens TokenSource, clk clock.Clock, cfg Config, onUnauthorized UnauthorizedFunc) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}
	return &Interceptor{
		base:           base,
		tokens:         tokens,
		clock:          clk,
		skew:           cfg.RefreshSkew,
		onUnauthorized: onUnauthorized,
	}
}

// RoundTrip реализует http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := logger.Log(ctx).With(zap.String("method", LogMethodRoundTrip), zap.String("path", req.URL.Path))

	token, ok := i.tokens.AccessToken()
	if !ok {
		return i.base.RoundTrip(req)
	}

	if i.expiring() {
		refreshed, err := i.tokens.Refresh(ctx, token)
		switch {
		case err == nil:
			token = refreshed
		case fatal(err):
			log.Warn(ctx, ErrorProactiveRefresh, zap.Error(err))
			i.fail(ctx, err)
			return nil, err
		default:
			// Сеть недоступна: пробуем со старым токеном, сервис сам ответит 401.
			log.Debug(ctx, ErrorProactiveRefresh, zap.Error(err))
		}
	}

	resp, err := i.send(req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		log.Warn(ctx, LogNotReplayable)
		return resp, nil
	}
	drain(resp)

	refreshed, err := i.tokens.Refresh(ctx, token)
	if err != nil {
		log.Warn(ctx, ErrorRefreshAfter401, zap.Error(err))
		if fatal(err) {
			i.fail(ctx, err)
		}
		return nil, fmt.Errorf("%s: %w", ErrorRefreshAfter401, err)
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrorReplayBody, err)
	}

	resp, err = i.send(retry, refreshed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		log.Warn(ctx, LogRetryRejected)
		i.fail(ctx, ErrUnauthorized)
	}
	return resp, nil
}

func (i *Interceptor) expiring() bool {
	expiresAt := i.tokens.AccessExpiresAt()
	if expiresAt.IsZero() {
		return false
	}
	return !i.clock.Now().Add(i.skew).Before(expiresAt)
}

// send не меняет исходный запрос: RoundTripper обязан работать с копией.
func (i *Interceptor) send(req *http.Request, token string) (*http.Response, error) {
	signed := req.Clone(req.Context())
	signed.Header.Set("Authorization", "Bearer "+token)
	return i.base.RoundTrip(signed)
}

func (i *Interceptor) fail(ctx context.Context, cause error) {
	if i.onUnauthorized != nil {
		i.onUnauthorized(ctx, cause)
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry := req.Clone(req.Context())
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

// fatal - ошибки, после которых сессию нужно завершить.
func fatal(err error) bool {
	return errors.Is(err, entities.ErrRefreshInvalid) ||
		errors.Is(err, entities.ErrNotAuthenticated) ||
		errors.Is(err, entities.ErrSessionEnded)
}
