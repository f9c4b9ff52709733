package domain

import "time"

// StepState — состояние одного шага внутри run.
type StepState struct {
	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Error — текст ошибки последней неудачной попытки.
	Error string `json:"error,omitempty"`

	// SkipReason — почему шаг пропущен (только для SKIPPED).
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Attempts — сколько раз шаг отправлялся на выполнение.
	Attempts int `json:"attempts"`

	// StartedAt — время начала последней попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения (успешного или с ошибкой).
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration возвращает продолжительность последней попытки.
func (s *StepState) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// clone возвращает независимую копию.
func (s *StepState) clone() *StepState {
	c := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// StepError — запись об ошибке шага, видимая вызывающему.
type StepError struct {
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
