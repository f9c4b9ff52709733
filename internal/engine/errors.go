package engine

import "errors"

// Ошибки конфигурации графа шагов.
var (
	// ErrEmptySteps — граф не содержит шагов.
	ErrEmptySteps = errors.New("step graph has no steps")

	// ErrEmptyStepID — шаг не имеет имени.
	ErrEmptyStepID = errors.New("step has empty name")

	// ErrDuplicateStepID — несколько шагов с одинаковым именем.
	ErrDuplicateStepID = errors.New("duplicate step name")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — шаг зависит от самого себя.
	ErrSelfDependency = errors.New("step depends on itself")
)

// ValidationError — ошибка конфигурации с контекстом.
type ValidationError struct {
	StepID  string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
