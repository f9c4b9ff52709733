package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord — долговременная проекция WorkflowRun
// (строка таблицы onboarding_sessions).
//
// Всегда выводится из WorkflowRun через Record().
type SessionRecord struct {
	ID             uuid.UUID   `json:"id"`
	PropertyID     *string     `json:"property_id"`
	URL            string      `json:"url"`
	Status         RunStatus   `json:"status"`
	CurrentStep    *string     `json:"current_step"`
	CompletedSteps []string    `json:"completed_steps"`
	Errors         []StepError `json:"errors"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Record строит проекцию run для хранения и отчётов.
func (r *WorkflowRun) Record() SessionRecord {
	rec := SessionRecord{
		ID:             r.SessionID,
		URL:            r.URL,
		Status:         r.Status,
		CompletedSteps: r.CompletedSteps(),
		Errors:         append([]StepError{}, r.Errors...),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.HasProperty() {
		id := r.PropertyID
		rec.PropertyID = &id
	}
	if cur := r.CurrentStep(); cur != "" {
		rec.CurrentStep = &cur
	}
	return rec
}
