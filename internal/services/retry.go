package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/logger"
)

// 退避时长上限
const maxRetryDelay = 5 * time.Second

// withRetry 对可重试错误执行指数退避重试
// 仅限流与可重试的后端错误触发重试，其余错误立即返回
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, op string, fn func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) || attempt >= maxRetries {
			return err
		}

		delay := baseDelay << uint(attempt)
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		logger.Warn("Retrying after transient error",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
