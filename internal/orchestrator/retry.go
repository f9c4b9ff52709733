package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// RetryStep возвращает упавший шаг run'а в работу.
//
// Шаг должен быть в FAILED, а все его зависимости в COMPLETED.
// Решение о кэше run'а не пересчитывается. Для активного run'а запрос
// выполняет его координатор; завершённый run возвращается в IN_PROGRESS
// и получает новый координатор.
func (o *Orchestrator) RetryStep(ctx context.Context, id uuid.UUID, step string) error {
	if !o.registry.Has(step) {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidState, step)
	}

	if h := o.activeRun(id); h != nil {
		req := retryRequest{step: step, reply: make(chan error, 1)}
		select {
		case h.retries <- req:
			if err := <-req.reply; err != nil {
				return err
			}
			o.retryAccepted(id, step)
			return nil
		case <-h.done:
			// Координатор вышел; run уже сохранён в финальном состоянии.
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	run, err := o.load(ctx, id)
	if err != nil {
		return err
	}
	if run.Status == domain.RunStatusCancelled {
		return fmt.Errorf("%w: run cancelled", ErrInvalidState)
	}

	state := NewRunState(run, o.registry)
	if !run.Status.IsTerminal() {
		// Незавершённый run без координатора прерван остановкой процесса.
		state.ResetInterrupted()
	}
	if err := state.ValidateRetry(step); err != nil {
		return err
	}

	state.ResetForRetry(step)
	run.UpdatedAt = o.clock.Now()
	if err := o.store.Update(ctx, run); err != nil {
		return fmt.Errorf("save retry: %w", err)
	}
	o.publishStepUpdated(ctx, run, step)

	if _, err := o.launch(run); err != nil {
		return fmt.Errorf("relaunch run: %w", err)
	}

	o.retryAccepted(id, step)
	return nil
}

func (o *Orchestrator) retryAccepted(id uuid.UUID, step string) {
	telemetry.StepRetries.WithLabelValues(step).Inc()
	o.logger.Info("step retry scheduled", "session_id", id, "step", step)
}
