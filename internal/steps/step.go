package steps

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/cache"
	"github.com/shaiso/onboarder/internal/domain"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — шаг не найден в реестре.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidRegistry — таблица шагов не прошла проверку.
	ErrInvalidRegistry = errors.New("invalid step registry")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step timeout")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step cancelled")

	// ErrNoPropertyID — обязательный шаг не вернул идентификатор объекта.
	ErrNoPropertyID = errors.New("mandatory step returned no property id")
)

// Definition — неизменяемое описание шага.
type Definition struct {
	// Name — уникальное имя шага.
	Name string

	// DependsOn — шаги, которые должны быть COMPLETED до запуска.
	DependsOn []string

	// ConsumesCache — шаг читает общее решение о кэше.
	ConsumesCache bool

	// RateLimitClass — класс ограничения частоты (общий внешний ресурс).
	// Пустой класс не ограничивается отдельно.
	RateLimitClass string

	// Mandatory — обязательный шаг: задаёт PropertyID, его падение
	// завершает run как failed. В реестре ровно один такой шаг.
	Mandatory bool

	// Timeout — таймаут одного вызова. 0 — значение по умолчанию оркестратора.
	Timeout time.Duration

	// Retry — повторные попытки внутри одного запуска шага.
	Retry *RetryPolicy

	// Executor — исполнитель шага.
	Executor Executor
}

// Executor — исполнитель шага.
//
// Исполнитель должен проверять ctx.Done(): отмена run'а и таймаут
// шага передаются через контекст.
type Executor interface {
	Execute(ctx context.Context, rc *RunContext) (*Result, error)
}

// ExecutorFunc позволяет использовать функцию как Executor.
type ExecutorFunc func(ctx context.Context, rc *RunContext) (*Result, error)

// Execute вызывает f.
func (f ExecutorFunc) Execute(ctx context.Context, rc *RunContext) (*Result, error) {
	return f(ctx, rc)
}

// RunContext — входные данные шага.
type RunContext struct {
	SessionID  uuid.UUID `json:"session_id"`
	Step       string    `json:"step"`
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	PropertyID string    `json:"property_id,omitempty"`

	// CacheDecision — nil для шагов, не читающих кэш.
	CacheDecision *domain.CacheDecision `json:"cache_decision,omitempty"`

	// Attempt — номер попытки (начиная с 1).
	Attempt int `json:"attempt"`
}

// Result — результат шага.
type Result struct {
	PropertyID string         `json:"property_id,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Artifacts  []cache.Entry  `json:"artifacts,omitempty"`
}
