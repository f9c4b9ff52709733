package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Стратегии backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// RetryPolicy — политика повторных попыток внутри одного запуска шага.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string

	// InitialDelay — начальная задержка.
	InitialDelay time.Duration

	// MaxDelay — максимальная задержка.
	MaxDelay time.Duration
}

// ExecuteWithRetry выполняет шаг согласно def.Retry.
//
// Отмена и таймаут контекста не повторяются. Attempt в rc
// увеличивается для каждой повторной попытки.
func ExecuteWithRetry(ctx context.Context, def Definition, rc *RunContext, logger *slog.Logger) (*Result, error) {
	maxAttempts := 1
	if def.Retry != nil && def.Retry.MaxAttempts > 0 {
		maxAttempts = def.Retry.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	first := rc.Attempt
	for attempt := 1; ; attempt++ {
		result, err := def.Executor.Execute(ctx, rc)
		if err == nil {
			return result, nil
		}

		if attempt >= maxAttempts || !shouldRetry(ctx, err) {
			return nil, err
		}

		delay := calculateBackoff(attempt, def.Retry)
		logger.Debug("retrying step",
			"step", def.Name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		}

		next := *rc
		next.Attempt = first + attempt
		rc = &next
	}
}

// shouldRetry определяет, нужно ли делать retry.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}

// calculateBackoff вычисляет задержку перед retry.
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return defaultInitialDelay
	}

	initialDelay := policy.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := initialDelay
	if policy.Backoff == BackoffExponential {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}

	return min(delay, maxDelay)
}
