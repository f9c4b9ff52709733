package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/cache"
	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/repo"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// Submit создаёт run для URL и запускает его, не дожидаясь завершения.
//
// Решение о кэше принимается здесь один раз и сохраняется в run'е
// до старта первого шага. Возвращается снимок только что созданного
// run'а: статус started, PropertyID пуст.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string, forceRefresh bool) (*domain.WorkflowRun, error) {
	snapshot, _, err := o.submit(ctx, rawURL, forceRefresh)
	return snapshot, err
}

// Run создаёт run и блокируется до его завершения.
// Возвращает финальный снимок run'а.
func (o *Orchestrator) Run(ctx context.Context, rawURL string, forceRefresh bool) (*domain.WorkflowRun, error) {
	_, h, err := o.submit(ctx, rawURL, forceRefresh)
	if err != nil {
		return nil, err
	}
	return o.wait(ctx, h)
}

func (o *Orchestrator) submit(ctx context.Context, rawURL string, forceRefresh bool) (*domain.WorkflowRun, *runHandle, error) {
	if o.IsStopped() {
		return nil, nil, ErrOrchestratorStopped
	}

	host, err := cache.DomainOf(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	decision, err := o.decider.Decide(ctx, host, forceRefresh)
	if err != nil {
		return nil, nil, fmt.Errorf("decide cache: %w", err)
	}
	telemetry.CacheDecisions.WithLabelValues(strconv.FormatBool(decision.UseCache)).Inc()

	run := domain.NewWorkflowRun(rawURL, host, forceRefresh, o.registry.Names(), o.clock.Now())
	run.CacheDecision = &decision

	if err := o.store.Create(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("create run: %w", err)
	}

	// После launch run принадлежит координатору.
	snapshot := run.Clone()

	h, err := o.launch(run)
	if err != nil {
		return nil, nil, err
	}

	o.logger.Info("run submitted",
		"session_id", run.SessionID,
		"domain", host,
		"force_refresh", forceRefresh,
		"use_cache", decision.UseCache,
	)
	return snapshot, h, nil
}

// Wait блокируется до выхода координатора run'а и возвращает его
// последний снимок. Для неактивного run'а возвращает снимок из хранилища.
func (o *Orchestrator) Wait(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	if h := o.activeRun(id); h != nil {
		return o.wait(ctx, h)
	}
	return o.Status(ctx, id)
}

func (o *Orchestrator) wait(ctx context.Context, h *runHandle) (*domain.WorkflowRun, error) {
	select {
	case <-h.done:
		return h.final.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load читает run из хранилища, переводя отсутствие в ErrRunNotFound.
func (o *Orchestrator) load(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	run, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// isRejected сообщает, что заявку нельзя принять ни при какой попытке.
func isRejected(err error) bool {
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, cache.ErrEmptyDomain)
}
