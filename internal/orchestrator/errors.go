package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден.
	ErrRunNotFound = errors.New("run not found")

	// ErrPropertyNotFound — для объекта нет ни одного run'а.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrInvalidState — операция невозможна в текущем состоянии run'а или шага.
	ErrInvalidState = errors.New("invalid state")

	// ErrDependencyNotReady — зависимости шага ещё не выполнены.
	ErrDependencyNotReady = errors.New("dependency not ready")

	// ErrInvalidURL — URL нельзя онбордить.
	ErrInvalidURL = errors.New("invalid url")

	// ErrRunAlreadyActive — run уже ведёт координатор.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunCancelled — причина отмены контекста run'а.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrInvalidConfig — неполная конфигурация оркестратора.
	ErrInvalidConfig = errors.New("invalid orchestrator config")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
