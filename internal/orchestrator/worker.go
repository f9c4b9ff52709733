package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/onboarder/internal/steps"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// noClass — метка метрик для шагов без класса ограничения.
const noClass = "none"

// runStep выполняет один запуск шага и сообщает о нём координатору.
//
// Слот берётся сначала в семафоре класса, затем в общем пуле: шаг,
// ждущий свой класс, не занимает место в пуле.
func (o *Orchestrator) runStep(ctx context.Context, def steps.Definition, rc *steps.RunContext, events chan<- stepEvent) {
	log := telemetry.WithStep(telemetry.FromContext(ctx), def.Name)
	class := def.RateLimitClass
	if class == "" {
		class = noClass
	}

	queuedAt := o.clock.Now()
	release, err := o.acquire(ctx, def.RateLimitClass)
	if err != nil {
		log.Debug("step not started", "reason", err)
		events <- stepEvent{step: def.Name, kind: stepFinished, at: o.clock.Now(), interrupted: true}
		return
	}

	startedAt := o.clock.Now()
	telemetry.StepWaitDuration.WithLabelValues(class).Observe(startedAt.Sub(queuedAt).Seconds())
	events <- stepEvent{step: def.Name, kind: stepStarted, at: startedAt}

	timeout := o.stepTimeoutFor(def)
	stepCtx, cancel := context.WithTimeoutCause(ctx, timeout, steps.ErrStepTimeout)

	// Сторожевой таймер не зависит от отмены run'а: исполнитель, который
	// не смотрит на контекст, держит слоты не дольше таймаута шага.
	watchdog, stopWatchdog := context.WithTimeoutCause(context.WithoutCancel(ctx), timeout, steps.ErrStepTimeout)

	spanCtx, span := telemetry.StartSpan(stepCtx, "onboarding.step",
		telemetry.SessionIDKey.String(rc.SessionID.String()),
		telemetry.StepNameKey.String(def.Name),
		telemetry.StepAttemptKey.Int(rc.Attempt),
		telemetry.RateLimitClassKey.String(class),
	)
	if rc.CacheDecision != nil {
		span.SetAttributes(telemetry.UseCacheKey.Bool(rc.CacheDecision.UseCache))
	}

	// Буфер на один результат: брошенная после таймаута горутина
	// допишет его и завершится.
	results := make(chan execResult, 1)
	go func() {
		result, err := steps.ExecuteWithRetry(spanCtx, def, rc, log)
		results <- execResult{result: result, err: err}
	}()

	var res execResult
	select {
	case res = <-results:
	case <-watchdog.Done():
		res.err = context.Cause(watchdog)
		log.Warn("step executor did not return before timeout, abandoning it", "timeout", timeout)
	}
	finishedAt := o.clock.Now()

	ev := stepEvent{step: def.Name, kind: stepFinished, at: finishedAt, result: res.result, err: res.err}
	switch {
	case res.err == nil:
	case ctx.Err() != nil:
		ev.interrupted = true
	case errors.Is(res.err, steps.ErrStepTimeout), errors.Is(context.Cause(stepCtx), steps.ErrStepTimeout):
		ev.err = fmt.Errorf("%w after %s", steps.ErrStepTimeout, timeout)
	}

	stopWatchdog()
	cancel()
	release()

	duration := finishedAt.Sub(startedAt)
	telemetry.StepDuration.WithLabelValues(def.Name).Observe(duration.Seconds())
	telemetry.StepsTotal.WithLabelValues(def.Name, outcome(ev)).Inc()
	if ev.err != nil && !ev.interrupted {
		telemetry.SetError(span, ev.err, telemetry.StepNameKey.String(def.Name))
	}
	span.End()
	logStepResult(log, ev, duration)

	events <- ev
}

// execResult — итог вызова исполнителя.
type execResult struct {
	result *steps.Result
	err    error
}

// acquire занимает слот класса и слот пула.
func (o *Orchestrator) acquire(ctx context.Context, class string) (func(), error) {
	var classSem *semaphore.Weighted
	if class != "" {
		classSem = o.classes[class]
	}

	if classSem != nil {
		if err := classSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if err := o.pool.Acquire(ctx, 1); err != nil {
		if classSem != nil {
			classSem.Release(1)
		}
		return nil, err
	}

	return func() {
		o.pool.Release(1)
		if classSem != nil {
			classSem.Release(1)
		}
	}, nil
}

func outcome(ev stepEvent) string {
	switch {
	case ev.interrupted:
		return "interrupted"
	case ev.err != nil:
		return "failed"
	default:
		return "completed"
	}
}

// stepTimeoutFor возвращает таймаут шага.
func (o *Orchestrator) stepTimeoutFor(def steps.Definition) time.Duration {
	if def.Timeout > 0 {
		return def.Timeout
	}
	return o.stepTimeout
}
