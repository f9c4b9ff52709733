package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// WorkflowRun — одна попытка онбординга объекта недвижимости.
//
// Run создаётся когда:
// - Пользователь отправляет URL через API/CLI
// - Другой сервис публикует заявку в очередь onboarding.submit
//
// Поле Steps меняет только координатор run'а.
type WorkflowRun struct {
	// SessionID — уникальный идентификатор run.
	SessionID uuid.UUID `json:"session_id"`

	// URL — сайт объекта.
	URL string `json:"url"`

	// Domain — нормализованный хост URL, ключ кэша.
	Domain string `json:"domain"`

	// ForceRefresh — игнорировать кэш независимо от его возраста.
	ForceRefresh bool `json:"force_refresh"`

	// PropertyID — идентификатор объекта. Пусто, пока обязательный шаг не выполнен.
	PropertyID string `json:"property_id,omitempty"`

	// CacheDecision — решение о кэше; nil до первого шага, читающего кэш.
	CacheDecision *CacheDecision `json:"cache_decision,omitempty"`

	// Steps — состояние каждого шага.
	Steps map[string]*StepState `json:"steps"`

	// Order — имена шагов в порядке реестра.
	Order []string `json:"order"`

	// Status — статус run'а.
	Status RunStatus `json:"status"`

	// Errors — ошибки шагов, по одной на упавший шаг.
	Errors []StepError `json:"errors"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего сохранённого перехода.
	UpdatedAt time.Time `json:"updated_at"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Version — счётчик оптимистичной блокировки хранилища.
	Version int `json:"version"`
}

// NewWorkflowRun создаёт run, в котором все шаги в PENDING.
func NewWorkflowRun(url, domain string, forceRefresh bool, order []string, now time.Time) *WorkflowRun {
	steps := make(map[string]*StepState, len(order))
	for _, name := range order {
		steps[name] = &StepState{Status: StepStatusPending}
	}
	return &WorkflowRun{
		SessionID:    uuid.New(),
		URL:          url,
		Domain:       domain,
		ForceRefresh: forceRefresh,
		Steps:        steps,
		Order:        slices.Clone(order),
		Status:       RunStatusStarted,
		Errors:       []StepError{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone возвращает глубокую копию run.
func (r *WorkflowRun) Clone() *WorkflowRun {
	c := *r
	c.Steps = make(map[string]*StepState, len(r.Steps))
	for name, st := range r.Steps {
		c.Steps[name] = st.clone()
	}
	c.Order = slices.Clone(r.Order)
	c.Errors = slices.Clone(r.Errors)
	if c.Errors == nil {
		c.Errors = []StepError{}
	}
	if r.CacheDecision != nil {
		d := *r.CacheDecision
		c.CacheDecision = &d
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// HasProperty возвращает true, если идентификатор объекта известен.
func (r *WorkflowRun) HasProperty() bool {
	return r.PropertyID != ""
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *WorkflowRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает продолжительность run'а.
// Возвращает 0, если run ещё не завершён.
func (r *WorkflowRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.CreatedAt)
}

// StepStatus возвращает статус шага (пусто для неизвестного шага).
func (r *WorkflowRun) StepStatus(name string) StepStatus {
	if st, ok := r.Steps[name]; ok {
		return st.Status
	}
	return ""
}

// StepsWithStatus возвращает шаги с указанным статусом в порядке реестра.
func (r *WorkflowRun) StepsWithStatus(status StepStatus) []string {
	out := make([]string, 0)
	for _, name := range r.Order {
		if st, ok := r.Steps[name]; ok && st.Status == status {
			out = append(out, name)
		}
	}
	return out
}

// CompletedSteps возвращает выполненные шаги в порядке реестра.
func (r *WorkflowRun) CompletedSteps() []string {
	return r.StepsWithStatus(StepStatusCompleted)
}

// CurrentStep возвращает первый выполняющийся шаг или пустую строку.
func (r *WorkflowRun) CurrentStep() string {
	if running := r.StepsWithStatus(StepStatusRunning); len(running) > 0 {
		return running[0]
	}
	return ""
}

// HasActiveSteps возвращает true, если есть шаги в READY или RUNNING.
func (r *WorkflowRun) HasActiveSteps() bool {
	for _, st := range r.Steps {
		if st.Status.IsActive() {
			return true
		}
	}
	return false
}

// MarkStepReady переводит шаг в READY.
func (r *WorkflowRun) MarkStepReady(name string) {
	st := r.Steps[name]
	st.Status = StepStatusReady
	st.SkipReason = ""
}

// MarkStepRunning переводит шаг в RUNNING и увеличивает счётчик попыток.
func (r *WorkflowRun) MarkStepRunning(name string, at time.Time) {
	st := r.Steps[name]
	st.Status = StepStatusRunning
	st.StartedAt = &at
	st.CompletedAt = nil
	st.Attempts++
}

// MarkStepCompleted переводит шаг в COMPLETED.
func (r *WorkflowRun) MarkStepCompleted(name string, at time.Time) {
	st := r.Steps[name]
	st.Status = StepStatusCompleted
	st.Error = ""
	st.CompletedAt = &at
}

// MarkStepFailed переводит шаг в FAILED и добавляет запись в Errors.
func (r *WorkflowRun) MarkStepFailed(name, message string, at time.Time) {
	st := r.Steps[name]
	st.Status = StepStatusFailed
	st.Error = message
	st.CompletedAt = &at
	r.clearStepError(name)
	r.Errors = append(r.Errors, StepError{Step: name, Message: message, Timestamp: at})
}

// MarkStepSkipped переводит шаг в SKIPPED.
func (r *WorkflowRun) MarkStepSkipped(name string, reason SkipReason) {
	st := r.Steps[name]
	st.Status = StepStatusSkipped
	st.SkipReason = reason
}

// MarkStepPending возвращает пропущенный шаг в PENDING.
func (r *WorkflowRun) MarkStepPending(name string) {
	st := r.Steps[name]
	st.Status = StepStatusPending
	st.SkipReason = ""
}

// ResetStepForRetry подготавливает упавший шаг к повторной попытке:
// статус READY, ошибка очищена. Attempts сохраняется.
func (r *WorkflowRun) ResetStepForRetry(name string) {
	st := r.Steps[name]
	st.Status = StepStatusReady
	st.Error = ""
	st.StartedAt = nil
	st.CompletedAt = nil
	r.clearStepError(name)
}

// MarkInProgress переводит run в IN_PROGRESS (в том числе из финального статуса при retry).
func (r *WorkflowRun) MarkInProgress() {
	r.Status = RunStatusInProgress
	r.FinishedAt = nil
}

// Finish переводит run в финальный статус.
func (r *WorkflowRun) Finish(status RunStatus, at time.Time) {
	r.Status = status
	r.FinishedAt = &at
}

func (r *WorkflowRun) clearStepError(name string) {
	r.Errors = slices.DeleteFunc(r.Errors, func(e StepError) bool {
		return e.Step == name
	})
}
