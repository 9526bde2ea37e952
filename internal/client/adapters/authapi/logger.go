package authapi

import (
	"context"
	"fmt"

	"authkeeper/pkg/logger"
)

// restyLogger направляет внутренние сообщения resty в общий логгер.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	ctx := context.Background()
	logger.Log(ctx).Error(ctx, fmt.Sprintf(format, v...))
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	ctx := context.Background()
	logger.Log(ctx).Warn(ctx, fmt.Sprintf(format, v...))
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	ctx := context.Background()
	logger.Log(ctx).Debug(ctx, fmt.Sprintf(format, v...))
}
