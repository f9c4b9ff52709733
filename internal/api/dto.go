package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/domain"
)

// SubmitRequest — заявка на онбординг.
type SubmitRequest struct {
	URL            string `json:"url" validate:"required,url"`
	ForceReonboard bool   `json:"force_reonboard"`
}

// SubmitResponse — принятая заявка.
type SubmitResponse struct {
	SessionID  uuid.UUID        `json:"session_id"`
	PropertyID *string          `json:"property_id"`
	Status     domain.RunStatus `json:"status"`
}

// RetryRequest — запрос retry шага.
type RetryRequest struct {
	StepName string `json:"step_name" validate:"required"`
}

// RetryResponse — результат retry.
type RetryResponse struct {
	Success bool `json:"success"`
}

// StepErrorResponse — ошибка шага.
type StepErrorResponse struct {
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResponse — состояние шага.
type StepResponse struct {
	Status      domain.StepStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	SkipReason  domain.SkipReason `json:"skip_reason,omitempty"`
	Attempts    int               `json:"attempts"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// StatusResponse — статус run'а.
type StatusResponse struct {
	SessionID      uuid.UUID               `json:"session_id"`
	Status         domain.RunStatus        `json:"status"`
	CurrentStep    *string                 `json:"current_step"`
	CompletedSteps []string                `json:"completed_steps"`
	Errors         []StepErrorResponse     `json:"errors"`
	PropertyID     *string                 `json:"property_id"`
	URL            string                  `json:"url"`
	Steps          map[string]StepResponse `json:"steps"`
	CacheDecision  *domain.CacheDecision   `json:"cache_decision,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty"`
}

// MissingResponse — недостающие извлечения объекта.
type MissingResponse struct {
	PropertyID string   `json:"property_id"`
	Missing    []string `json:"missing"`
}

// SubmitFromDomain строит ответ на заявку.
func SubmitFromDomain(run *domain.WorkflowRun) SubmitResponse {
	return SubmitResponse{
		SessionID:  run.SessionID,
		PropertyID: run.Record().PropertyID,
		Status:     run.Status,
	}
}

// StatusFromDomain строит ответ со статусом run'а.
func StatusFromDomain(run *domain.WorkflowRun) StatusResponse {
	rec := run.Record()

	errs := make([]StepErrorResponse, len(rec.Errors))
	for i, e := range rec.Errors {
		errs[i] = StepErrorResponse{Step: e.Step, Message: e.Message, Timestamp: e.Timestamp}
	}

	stepsOut := make(map[string]StepResponse, len(run.Steps))
	for name, st := range run.Steps {
		stepsOut[name] = StepResponse{
			Status:      st.Status,
			Error:       st.Error,
			SkipReason:  st.SkipReason,
			Attempts:    st.Attempts,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
		}
	}

	return StatusResponse{
		SessionID:      rec.ID,
		Status:         rec.Status,
		CurrentStep:    rec.CurrentStep,
		CompletedSteps: rec.CompletedSteps,
		Errors:         errs,
		PropertyID:     rec.PropertyID,
		URL:            rec.URL,
		Steps:          stepsOut,
		CacheDecision:  run.CacheDecision,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		FinishedAt:     run.FinishedAt,
	}
}
