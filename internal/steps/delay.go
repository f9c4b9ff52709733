package steps

import (
	"context"
	"time"
)

// Delay — исполнитель-заглушка, который ждёт d и возвращает result.
// Используется в режиме разработки без сервиса извлечения.
func Delay(d time.Duration, result *Result) Executor {
	return ExecutorFunc(func(ctx context.Context, rc *RunContext) (*Result, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if result == nil {
			return &Result{}, nil
		}
		r := *result
		return &r, nil
	})
}
