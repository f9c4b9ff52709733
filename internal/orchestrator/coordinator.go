package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/onboarder/internal/repo"
	"github.com/shaiso/onboarder/internal/steps"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// Пауза между попытками сохранить run.
const (
	persistRetryMin = 50 * time.Millisecond
	persistRetryMax = 5 * time.Second
)

type eventKind int

const (
	stepStarted eventKind = iota
	stepFinished
)

// stepEvent — сообщение воркера координатору.
type stepEvent struct {
	step   string
	kind   eventKind
	at     time.Time
	result *steps.Result
	err    error

	// interrupted — шаг прерван отменой run'а или остановкой процесса.
	interrupted bool
}

// retryRequest — запрос retry для активного run'а.
type retryRequest struct {
	step  string
	reply chan error
}

// coordinate ведёт run до финального статуса или до остановки процесса.
//
// Цикл: перевести готовые шаги в READY, раздать их воркерам, дождаться
// события воркера, запроса retry или отмены. Каждый переход сохраняется
// в хранилище до обработки следующего.
func (o *Orchestrator) coordinate(ctx context.Context, h *runHandle, state *RunState) {
	log := telemetry.WithSessionID(o.logger, h.sessionID.String())
	ctx = telemetry.WithLogger(ctx, log)

	ctx, span := telemetry.StartSpan(ctx, "onboarding.run",
		telemetry.SessionIDKey.String(h.sessionID.String()),
	)
	defer span.End()
	if state.Run.PropertyID != "" {
		span.SetAttributes(telemetry.PropertyIDKey.String(state.Run.PropertyID))
	}

	defer func() {
		h.final = state.Run.Clone()
		o.removeActiveRun(h.sessionID)
		close(h.done)
	}()

	// Воркер шлёт не больше двух событий на запуск, а в полёте не больше
	// одного запуска на шаг, поэтому отправка никогда не блокируется.
	events := make(chan stepEvent, 2*len(state.Run.Order))
	done := ctx.Done()
	shuttingDown := false

	// observeStop фиксирует отмену или остановку один раз. Вызывается
	// до раздачи шагов и до разбора события, чтобы прерванный отменой
	// шаг не вернулся в PENDING и не был запущен повторно.
	observeStop := func() {
		if done == nil || ctx.Err() == nil {
			return
		}
		done = nil
		if errors.Is(context.Cause(ctx), ErrRunCancelled) {
			skipped := state.Cancel()
			log.Info("run cancellation requested", "skipped", skipped, "in_flight", state.InFlight())
			_ = o.persist(ctx, state, skipped...)
			return
		}
		shuttingDown = true
		log.Info("shutdown requested, waiting for running steps", "in_flight", state.InFlight())
	}

	log.Info("run coordinator started", "status", state.Run.Status, "url", state.Run.URL)

	for {
		observeStop()
		if !shuttingDown && !state.cancelled {
			o.advance(ctx, state, events)
		}

		if state.InFlight() == 0 {
			if shuttingDown {
				log.Info("run suspended", "stats", state.Stats())
				return
			}
			if err := o.finalize(ctx, state); err != nil {
				log.Warn("run suspended before final status was saved", "error", err)
			}
			return
		}

		select {
		case ev := <-events:
			observeStop()
			o.handleEvent(ctx, state, ev)

		case req := <-h.retries:
			req.reply <- o.applyRetry(ctx, state, req.step, shuttingDown)

		case <-done:
		}
	}
}

// advance продвигает готовность шагов и раздаёт READY шаги воркерам.
func (o *Orchestrator) advance(ctx context.Context, state *RunState, events chan<- stepEvent) {
	ready, skipped := state.Promote()
	dispatch := state.Undispatched()
	if len(ready) == 0 && len(skipped) == 0 && len(dispatch) == 0 {
		return
	}

	for _, name := range dispatch {
		state.MarkDispatched(name)
	}
	_ = o.persist(ctx, state, append(ready, skipped...)...)

	for _, name := range dispatch {
		def, err := o.registry.Get(name)
		if err != nil {
			// Run из хранилища может содержать шаг, которого уже нет в реестре.
			state.ApplyFailure(name, err.Error(), o.clock.Now())
			_ = o.persist(ctx, state, name)
			continue
		}
		go o.runStep(ctx, def, o.runContext(state, def), events)
	}
}

// runContext собирает входные данные шага из текущего состояния run'а.
func (o *Orchestrator) runContext(state *RunState, def steps.Definition) *steps.RunContext {
	run := state.Run
	rc := &steps.RunContext{
		SessionID:  run.SessionID,
		Step:       def.Name,
		URL:        run.URL,
		Domain:     run.Domain,
		PropertyID: run.PropertyID,
		Attempt:    run.Steps[def.Name].Attempts + 1,
	}
	if def.ConsumesCache && run.CacheDecision != nil {
		decision := *run.CacheDecision
		rc.CacheDecision = &decision
	}
	return rc
}

func (o *Orchestrator) handleEvent(ctx context.Context, state *RunState, ev stepEvent) {
	log := telemetry.FromContext(ctx).With("step", ev.step)

	switch {
	case ev.kind == stepStarted:
		state.ApplyStarted(ev.step, ev.at)
		_ = o.persist(ctx, state, ev.step)
		return

	case ev.interrupted:
		state.ApplyInterrupted(ev.step)
		log.Info("step interrupted", "status", state.Run.StepStatus(ev.step))
		_ = o.persist(ctx, state, ev.step)
		return
	}

	err := ev.err
	if err == nil && ev.step == o.registry.Mandatory() && (ev.result == nil || ev.result.PropertyID == "") {
		err = steps.ErrNoPropertyID
	}

	if err != nil {
		skipped := state.ApplyFailure(ev.step, err.Error(), ev.at)
		log.Warn("step failed", "error", err, "skipped", skipped)
		_ = o.persist(ctx, state, append([]string{ev.step}, skipped...)...)
		return
	}

	readmitted := state.ApplySuccess(ev.step, ev.result, ev.at)
	if ev.step == o.registry.Mandatory() {
		log = log.With("property_id", state.Run.PropertyID)
		telemetry.Annotate(ctx, telemetry.PropertyIDKey.String(state.Run.PropertyID))
	}
	log.Info("step completed", "readmitted", readmitted)
	_ = o.persist(ctx, state, append([]string{ev.step}, readmitted...)...)
}

// applyRetry обрабатывает retry шага внутри активного run'а.
func (o *Orchestrator) applyRetry(ctx context.Context, state *RunState, step string, shuttingDown bool) error {
	if shuttingDown {
		return ErrOrchestratorStopped
	}
	if state.cancelled {
		return ErrInvalidState
	}
	if err := state.ValidateRetry(step); err != nil {
		return err
	}

	state.ResetForRetry(step)
	telemetry.FromContext(ctx).Info("step retry accepted", "step", step)
	return o.persist(ctx, state, step)
}

// finalize переводит run в финальный статус. Если финальную запись
// сохранить не удалось, run в памяти остаётся незавершённым, как и
// в хранилище.
func (o *Orchestrator) finalize(ctx context.Context, state *RunState) error {
	status := state.FinalStatus()
	open := state.Run.Clone()
	state.Run.Finish(status, o.clock.Now())
	if err := o.persist(ctx, state); err != nil {
		state.Run = open
		return err
	}

	telemetry.RunsTotal.WithLabelValues(string(status)).Inc()
	o.publishRunFinished(ctx, state.Run)

	telemetry.FromContext(ctx).Info("run finished",
		"status", status,
		"property_id", state.Run.PropertyID,
		"duration", state.Run.Duration(),
		"stats", state.Stats(),
	)
	return nil
}

// persist синхронно сохраняет run и публикует step.updated
// для перечисленных шагов.
//
// Сохранение идёт и после отмены контекста run'а: переходы отмены
// тоже должны попасть в хранилище. Неудачная запись повторяется, пока
// не пройдёт или пока процесс не остановится; ошибка возвращается
// только во втором случае, и run потом поднимает ResumeInterrupted.
// Координатор — единственный писатель run'а, поэтому при конфликте
// версий берётся версия из хранилища и запись повторяется.
func (o *Orchestrator) persist(ctx context.Context, state *RunState, changed ...string) error {
	log := telemetry.FromContext(ctx)
	storeCtx := context.WithoutCancel(ctx)
	delay := persistRetryMin

	for attempt := 1; ; attempt++ {
		state.Run.UpdatedAt = o.clock.Now()
		err := o.store.Update(storeCtx, state.Run)
		if err == nil {
			break
		}

		log.Error("failed to persist run",
			"version", state.Run.Version,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("persist run: %w", err)
		}
		if errors.Is(err, repo.ErrConflict) {
			if stored, getErr := o.store.Get(storeCtx, state.Run.SessionID); getErr == nil {
				state.Run.Version = stored.Version
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-o.baseCtx.Done():
			timer.Stop()
			return fmt.Errorf("persist run: %w", err)
		}
		delay = min(delay*2, persistRetryMax)
	}

	for _, name := range changed {
		o.publishStepUpdated(ctx, state.Run, name)
	}
	return nil
}

func logStepResult(log *slog.Logger, ev stepEvent, duration time.Duration) {
	switch {
	case ev.interrupted:
		log.Debug("step execution interrupted", "duration", duration)
	case ev.err != nil:
		log.Debug("step execution failed", "duration", duration, "error", ev.err)
	default:
		log.Debug("step execution succeeded", "duration", duration)
	}
}
