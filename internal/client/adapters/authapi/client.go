// Package authapi реализует клиент удаленного сервиса аутентификации поверх HTTP+JSON.
package authapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/internal/client/ports/api"
	"authkeeper/internal/client/resilience"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodLogin   = "login"
	LogMethodVerify  = "verify_two_factor"
	LogMethodResend  = "resend_two_factor_code"
	LogMethodRefresh = "refresh_access_token"
	LogMethodLogout  = "logout"

	ErrorLogin   = "login request failed"
	ErrorVerify  = "two-factor verification request failed"
	ErrorResend  = "two-factor resend request failed"
	ErrorRefresh = "token refresh request failed"
	ErrorLogout  = "logout request failed"
	ErrorDecode  = "failed to decode response"
)

// Config содержит настройки клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport используется вместо http.DefaultTransport, если задан.
	Transport http.RoundTripper
}

// Client - клиент обмена учетных данных.
type Client struct {
	http   *resty.Client
	policy *resilience.Policy
	clock  clock.Clock
}

var _ api.AuthAPI = (*Client)(nil)

// NewClient создает клиент. Все вызовы проходят через policy; повторяются только refresh и logout.
func NewClient(cfg Config, policy *resilience.Policy, clk clock.Clock) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{})
	if cfg.Transport != nil {
		httpClient.SetTransport(cfg.Transport)
	}

	return &Client{
		http:   httpClient,
		policy: policy,
		clock:  clk,
	}
}

// Login отправляет учетные данные.
func (c *Client) Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodLogin))

	outcome, err := resilience.Do(ctx, c.policy, LogMethodLogin, false, func(ctx context.Context) (entities.LoginOutcome, error) {
		var body tokenResponse
		var failure errorResponse

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(loginRequest{Identifier: creds.Identifier, Secret: creds.Secret, RememberMe: creds.RememberMe}).
			SetResult(&body).
			SetError(&failure).
			Post(PathLogin)
		if err != nil {
			return entities.LoginOutcome{}, c.transportError(LogMethodLogin, resp, err)
		}

		switch status := resp.StatusCode(); {
		case resp.IsSuccess():
			if body.Requires2FA {
				if body.TwoFactorToken == "" {
					return entities.LoginOutcome{}, fmt.Errorf("%s: %w: missing challenge token", ErrorLogin, entities.ErrUnexpectedResponse)
				}
				return entities.LoginOutcome{Kind: entities.OutcomeRequiresTwoFactor, ChallengeToken: body.TwoFactorToken}, nil
			}
			authenticated, err := c.authenticated(&body)
			if err != nil {
				return entities.LoginOutcome{}, err
			}
			return entities.LoginOutcome{Kind: entities.OutcomeAuthenticated, Authenticated: &authenticated}, nil
		case status == http.StatusBadRequest, status == http.StatusUnauthorized:
			return entities.LoginOutcome{}, entities.ErrInvalidCredentials
		case status == http.StatusTooManyRequests:
			return entities.LoginOutcome{}, rateLimited(resp, &failure, c.clock.Now())
		case gatewayFailure(status):
			return entities.LoginOutcome{}, networkError(ErrorLogin, fmt.Errorf("status %d", status))
		default:
			return entities.LoginOutcome{}, unexpected(ErrorLogin, status)
		}
	})
	if err != nil {
		log.Warn(ctx, ErrorLogin, zap.Error(err))
		return entities.LoginOutcome{}, err
	}

	log.Info(ctx, "login accepted", zap.Bool("requires_two_factor", outcome.RequiresTwoFactor()))
	return outcome, nil
}

// VerifyTwoFactor обменивает 6-значный код на пару токенов.
func (c *Client) VerifyTwoFactor(ctx context.Context, challengeToken, code string) (entities.Authenticated, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodVerify))

	authenticated, err := resilience.Do(ctx, c.policy, LogMethodVerify, false, func(ctx context.Context) (entities.Authenticated, error) {
		var body tokenResponse
		var failure errorResponse

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(verifyRequest{Token: challengeToken, Code: code}).
			SetResult(&body).
			SetError(&failure).
			Post(PathVerify)
		if err != nil {
			return entities.Authenticated{}, c.transportError(LogMethodVerify, resp, err)
		}

		switch status := resp.StatusCode(); {
		case resp.IsSuccess():
			return c.authenticated(&body)
		case status == http.StatusUnauthorized, failure.RemainingAttempts != nil && status == http.StatusBadRequest:
			remaining := -1
			if failure.RemainingAttempts != nil {
				remaining = max(*failure.RemainingAttempts, 0)
			}
			return entities.Authenticated{}, &entities.InvalidCodeError{RemainingAttempts: remaining}
		case status == http.StatusTooManyRequests:
			throttled := rateLimited(resp, &failure, c.clock.Now())
			return entities.Authenticated{}, &entities.TooManyAttemptsError{RetryAfter: throttled.RetryAfter, Message: throttled.Message}
		case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusGone:
			return entities.Authenticated{}, entities.ErrChallengeExpired
		case gatewayFailure(status):
			return entities.Authenticated{}, networkError(ErrorVerify, fmt.Errorf("status %d", status))
		default:
			return entities.Authenticated{}, unexpected(ErrorVerify, status)
		}
	})
	if err != nil {
		log.Warn(ctx, ErrorVerify, zap.Error(err))
		return entities.Authenticated{}, err
	}
	return authenticated, nil
}

// ResendTwoFactorCode просит сервис выпустить новый код. Попытки и срок challenge не меняются.
func (c *Client) ResendTwoFactorCode(ctx context.Context, challengeToken string) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodResend))

	_, err := resilience.Do(ctx, c.policy, LogMethodResend, false, func(ctx context.Context) (struct{}, error) {
		var failure errorResponse

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(resendRequest{Token: challengeToken}).
			SetError(&failure).
			Post(PathResend)
		if err != nil {
			return struct{}{}, c.transportError(LogMethodResend, resp, err)
		}

		switch status := resp.StatusCode(); {
		case resp.IsSuccess():
			return struct{}{}, nil
		case status == http.StatusTooManyRequests:
			return struct{}{}, rateLimited(resp, &failure, c.clock.Now())
		case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusGone:
			return struct{}{}, entities.ErrChallengeExpired
		case gatewayFailure(status):
			return struct{}{}, networkError(ErrorResend, fmt.Errorf("status %d", status))
		default:
			return struct{}{}, unexpected(ErrorResend, status)
		}
	})
	if err != nil {
		log.Warn(ctx, ErrorResend, zap.Error(err))
		return err
	}
	return nil
}

// RefreshAccessToken обменивает refresh-токен на новый access-токен.
// Любой ответ не 2xx считается RefreshInvalid; повторяются только сетевые сбои.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (entities.RefreshedToken, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodRefresh))

	refreshed, err := resilience.Do(ctx, c.policy, LogMethodRefresh, true, func(ctx context.Context) (entities.RefreshedToken, error) {
		var body tokenResponse

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(refreshRequest{Refresh: refreshToken}).
			SetResult(&body).
			Post(PathRefresh)
		if err != nil {
			return entities.RefreshedToken{}, c.transportError(LogMethodRefresh, resp, err)
		}

		if !resp.IsSuccess() {
			return entities.RefreshedToken{}, fmt.Errorf("%s: %w: status %d", ErrorRefresh, entities.ErrRefreshInvalid, resp.StatusCode())
		}
		if body.access() == "" {
			return entities.RefreshedToken{}, fmt.Errorf("%s: %w: missing access token", ErrorRefresh, entities.ErrRefreshInvalid)
		}
		return entities.RefreshedToken{
			AccessToken: body.access(),
			ExpiresAt:   c.expiresAt(body.AccessTokenExpiry),
		}, nil
	})
	if err != nil {
		log.Warn(ctx, ErrorRefresh, zap.Error(err))
		return entities.RefreshedToken{}, err
	}
	return refreshed, nil
}

// Logout уведомляет сервис о завершении сессии. Результат вызова не важен для локального выхода.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodLogout))

	_, err := resilience.Do(ctx, c.policy, LogMethodLogout, true, func(ctx context.Context) (struct{}, error) {
		req := c.http.R().SetContext(ctx)
		if accessToken != "" {
			req.SetAuthToken(accessToken)
		}

		resp, err := req.Post(PathLogout)
		if err != nil {
			return struct{}{}, c.transportError(LogMethodLogout, resp, err)
		}
		if gatewayFailure(resp.StatusCode()) {
			return struct{}{}, networkError(ErrorLogout, fmt.Errorf("status %d", resp.StatusCode()))
		}
		if !resp.IsSuccess() {
			return struct{}{}, unexpected(ErrorLogout, resp.StatusCode())
		}
		return struct{}{}, nil
	})
	if err != nil {
		log.Debug(ctx, ErrorLogout, zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) authenticated(body *tokenResponse) (entities.Authenticated, error) {
	if body.access() == "" || body.refresh() == "" {
		return entities.Authenticated{}, fmt.Errorf("%s: %w: missing tokens", ErrorDecode, entities.ErrUnexpectedResponse)
	}

	user, err := entities.ParseUser(body.User)
	if err != nil {
		return entities.Authenticated{}, fmt.Errorf("%s: %w: %w", ErrorDecode, entities.ErrUnexpectedResponse, err)
	}

	return entities.Authenticated{
		Tokens: entities.TokenPair{
			AccessToken:     body.access(),
			RefreshToken:    body.refresh(),
			AccessExpiresAt: c.expiresAt(body.AccessTokenExpiry),
		},
		User: user,
	}, nil
}

func (c *Client) expiresAt(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(time.Duration(seconds) * time.Second)
}

// transportError отличает сбой сети от ответа, который не удалось разобрать.
func (c *Client) transportError(op string, resp *resty.Response, err error) error {
	if resp != nil && resp.RawResponse != nil {
		return fmt.Errorf("%s: %w: %w", op, entities.ErrUnexpectedResponse, err)
	}
	return networkError(op, err)
}
