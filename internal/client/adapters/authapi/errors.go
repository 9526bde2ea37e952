package authapi

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"authkeeper/internal/client/domain/entities"
)

// throttleMessage - формат сообщения о троттлинге, который отдает сервис в теле 429.
var throttleMessage = regexp.MustCompile(`(?i)available in (\d+(?:\.\d+)?) seconds?`)

func networkError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, entities.ErrNetworkFailure, err)
}

func unexpected(op string, status int) error {
	return fmt.Errorf("%s: %w: status %d", op, entities.ErrUnexpectedResponse, status)
}

func gatewayFailure(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// rateLimited извлекает время ожидания из Retry-After или из текста сообщения.
func rateLimited(resp *resty.Response, body *errorResponse, now time.Time) *entities.RateLimitedError {
	err := &entities.RateLimitedError{Message: body.text()}

	if header := strings.TrimSpace(resp.Header().Get("Retry-After")); header != "" {
		if seconds, convErr := strconv.Atoi(header); convErr == nil && seconds > 0 {
			err.RetryAfter = time.Duration(seconds) * time.Second
			return err
		}
		if at, parseErr := http.ParseTime(header); parseErr == nil && at.After(now) {
			err.RetryAfter = at.Sub(now)
			return err
		}
	}

	if match := throttleMessage.FindStringSubmatch(err.Message); match != nil {
		if seconds, convErr := strconv.ParseFloat(match[1], 64); convErr == nil {
			err.RetryAfter = time.Duration(seconds * float64(time.Second)).Round(time.Second)
		}
	}
	return err
}
