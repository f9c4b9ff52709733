package domain

// RunStatus — статус онбординга (run).
//
// Жизненный цикл:
//
//	STARTED → IN_PROGRESS → COMPLETED
//	                      ↘ FAILED (только если упал обязательный шаг)
//	        (или) → CANCELLED
//
// Retry одного шага возвращает завершённый run в IN_PROGRESS.
type RunStatus string

const (
	// RunStatusStarted — run создан, шаги ещё не запускались.
	RunStatusStarted RunStatus = "started"

	// RunStatusInProgress — хотя бы один шаг отправлен на выполнение.
	RunStatusInProgress RunStatus = "in_progress"

	// RunStatusCompleted — обязательный шаг выполнен, больше нечего запускать.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — обязательный шаг завершился с ошибкой.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled — run отменён.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus — статус шага внутри run.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → COMPLETED
//	                          ↘ FAILED (может быть retry → обратно в READY)
//	       ↘ SKIPPED (упала зависимость или run отменён)
type StepStatus string

const (
	// StepStatusPending — зависимости ещё не выполнены.
	StepStatusPending StepStatus = "pending"

	// StepStatusReady — зависимости выполнены, шаг ждёт свободного воркера.
	StepStatusReady StepStatus = "ready"

	// StepStatusRunning — шаг выполняется воркером.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped — шаг не запускался.
	StepStatusSkipped StepStatus = "skipped"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// IsActive возвращает true для шагов, отправленных на выполнение.
func (s StepStatus) IsActive() bool {
	return s == StepStatusReady || s == StepStatusRunning
}

// SkipReason — причина пропуска шага.
type SkipReason string

const (
	// SkipReasonDependencyFailed — упала одна из (транзитивных) зависимостей.
	SkipReasonDependencyFailed SkipReason = "dependency_failed"

	// SkipReasonMandatoryFailed — упал обязательный шаг, run завершён как failed.
	SkipReasonMandatoryFailed SkipReason = "mandatory_failed"

	// SkipReasonCancelled — run отменён до старта шага.
	SkipReasonCancelled SkipReason = "cancelled"
)

// Recoverable возвращает true, если шаг может быть возвращён в работу
// после успешного retry упавшей зависимости.
func (r SkipReason) Recoverable() bool {
	return r == SkipReasonDependencyFailed || r == SkipReasonMandatoryFailed
}
