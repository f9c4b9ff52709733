package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/mq"
	"github.com/shaiso/onboarder/internal/telemetry"
)

const publishTimeout = 5 * time.Second

// publishStepUpdated сообщает о новом статусе шага. Ошибка публикации
// не влияет на run.
func (o *Orchestrator) publishStepUpdated(ctx context.Context, run *domain.WorkflowRun, step string) {
	if o.publisher == nil {
		return
	}
	st, ok := run.Steps[step]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := o.publisher.PublishStepUpdated(ctx, mq.StepUpdatedPayload{
		SessionID:  run.SessionID,
		Step:       step,
		Status:     string(st.Status),
		Error:      st.Error,
		Attempt:    st.Attempts,
		PropertyID: run.PropertyID,
	})
	if err != nil {
		telemetry.FromContext(ctx).Warn("failed to publish step event", "step", step, "error", err)
	}
}

// publishRunFinished сообщает о завершении run'а.
func (o *Orchestrator) publishRunFinished(ctx context.Context, run *domain.WorkflowRun) {
	if o.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := o.publisher.PublishRunFinished(ctx, mq.RunFinishedPayload{
		SessionID:      run.SessionID,
		Status:         string(run.Status),
		PropertyID:     run.PropertyID,
		CompletedSteps: run.CompletedSteps(),
		FailedSteps:    run.StepsWithStatus(domain.StepStatusFailed),
	})
	if err != nil {
		telemetry.FromContext(ctx).Warn("failed to publish run event", "error", err)
	}
}

// handleSubmit принимает заявку на онбординг из очереди onboarding.submit.
func (o *Orchestrator) handleSubmit(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.SubmitPayload](msg)
	if err != nil {
		return err
	}

	run, err := o.Submit(ctx, payload.URL, payload.ForceReonboard)
	if err != nil {
		if isRejected(err) {
			return fmt.Errorf("%w: %v", mq.ErrPoisonMessage, err)
		}
		return err
	}

	telemetry.Submissions.WithLabelValues("mq").Inc()
	o.logger.Info("submission accepted",
		"source", "mq",
		"message_id", msg.ID,
		"session_id", run.SessionID,
	)
	return nil
}
