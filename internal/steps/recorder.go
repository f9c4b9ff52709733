package steps

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/onboarder/internal/cache"
)

// RecordArtifacts оборачивает исполнителя: артефакты успешного
// результата сохраняются в store.
//
// Ошибка записи в кэш не роняет шаг: она только логируется.
func RecordArtifacts(store cache.Store, next Executor, clock clockwork.Clock, logger *slog.Logger) Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return ExecutorFunc(func(ctx context.Context, rc *RunContext) (*Result, error) {
		result, err := next.Execute(ctx, rc)
		if err != nil || result == nil {
			return result, err
		}

		for _, a := range result.Artifacts {
			if a.Domain == "" {
				a.Domain = rc.Domain
			}
			if a.CachedAt.IsZero() {
				a.CachedAt = clock.Now().UTC()
			}
			if err := store.Put(ctx, a); err != nil {
				logger.Warn("failed to store artifact",
					"session_id", rc.SessionID,
					"step", rc.Step,
					"content_type", a.ContentType,
					"error", err,
				)
			}
		}
		return result, nil
	})
}

// RecordAll оборачивает всех исполнителей карты в RecordArtifacts.
func RecordAll(store cache.Store, executors map[string]Executor, logger *slog.Logger) map[string]Executor {
	out := make(map[string]Executor, len(executors))
	for name, exec := range executors {
		out[name] = RecordArtifacts(store, exec, nil, logger)
	}
	return out
}
