package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/repo"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// Status возвращает последний сохранённый снимок run'а. Не блокируется
// на выполнении шагов.
func (o *Orchestrator) Status(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	return o.load(ctx, id)
}

// MissingExtractions возвращает необязательные шаги, которые в последнем
// run'е объекта не выполнены.
func (o *Orchestrator) MissingExtractions(ctx context.Context, propertyID string) ([]string, error) {
	run, err := o.store.LatestByProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
		}
		return nil, fmt.Errorf("latest run for property: %w", err)
	}

	missing := make([]string, 0)
	for _, name := range o.registry.Optional() {
		if run.StepStatus(name) != domain.StepStatusCompleted {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// Cancel отменяет run.
//
// Для активного run'а невыполненные шаги пропускаются, выполняющиеся
// получают отмену контекста, и Cancel ждёт выхода координатора.
// Незавершённый run без координатора отменяется прямо в хранилище.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	if h := o.activeRun(id); h != nil {
		h.cancel(ErrRunCancelled)
		final, err := o.wait(ctx, h)
		if err != nil {
			return err
		}
		if final.Status != domain.RunStatusCancelled && final.Status.IsTerminal() {
			return fmt.Errorf("%w: run already %s", ErrInvalidState, final.Status)
		}
		return nil
	}

	run, err := o.load(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("%w: run already %s", ErrInvalidState, run.Status)
	}

	state := NewRunState(run, o.registry)
	state.ResetInterrupted()
	skipped := state.Cancel()
	run.Finish(domain.RunStatusCancelled, o.clock.Now())
	run.UpdatedAt = o.clock.Now()

	if err := o.store.Update(ctx, run); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(domain.RunStatusCancelled)).Inc()
	for _, name := range skipped {
		o.publishStepUpdated(ctx, run, name)
	}
	o.publishRunFinished(ctx, run)

	o.logger.Info("inactive run cancelled", "session_id", id, "skipped", skipped)
	return nil
}
