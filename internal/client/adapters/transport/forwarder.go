package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodForward    = "forward"
	ErrorForwardRequest = "failed to forward request"
)

// ForwardRequest - запрос к ресурсному API от имени пользователя.
type ForwardRequest struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Body        []byte
}

// ForwardResponse - ответ ресурсного API без изменений.
type ForwardResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forwarder выполняет запросы к ресурсному API через перехватчик.
type Forwarder struct {
	client *resty.Client
}

// NewForwarder создает клиент поверх interceptor.
func NewForwarder(baseURL string, timeout time.Duration, interceptor http.RoundTripper) *Forwarder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetTransport(interceptor)

	return &Forwarder{client: client}
}

// Forward отправляет запрос. Ответы сервиса, включая 4xx и 5xx, возвращаются как есть;
// ошибка означает сбой транспорта или окончательный отказ в авторизации.
func (f *Forwarder) Forward(ctx context.Context, req ForwardRequest) (ForwardResponse, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodForward), zap.String("path", req.Path))

	r := f.client.R().SetContext(ctx)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
		if req.ContentType != "" {
			r.SetHeader("Content-Type", req.ContentType)
		}
	}
	if req.Query != "" {
		r.SetQueryString(req.Query)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		log.Warn(ctx, ErrorForwardRequest, zap.Error(err))
		return ForwardResponse{}, fmt.Errorf("%s: %w", ErrorForwardRequest, err)
	}

	log.Debug(ctx, "request forwarded", zap.Int("status", resp.StatusCode()))
	return ForwardResponse{
		Status:      resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}
