package orchestrator

import (
	"fmt"
	"time"

	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/steps"
)

// RunState — состояние run'а в памяти координатора.
//
// RunState принадлежит одной горутине-координатору; воркеры его
// не трогают, а присылают события. Поэтому мьютекса нет.
type RunState struct {
	// Run — текущая версия run'а (та же, что сохраняется в хранилище).
	Run *domain.WorkflowRun

	registry *steps.Registry

	// dispatched — шаги, для которых запущен воркер.
	dispatched map[string]bool

	// cancelled — запрошена отмена run'а.
	cancelled bool
}

// NewRunState создаёт RunState поверх run.
func NewRunState(run *domain.WorkflowRun, registry *steps.Registry) *RunState {
	return &RunState{
		Run:        run,
		registry:   registry,
		dispatched: make(map[string]bool),
	}
}

// completedSet возвращает множество выполненных шагов.
func (s *RunState) completedSet() map[string]bool {
	completed := make(map[string]bool)
	for name, st := range s.Run.Steps {
		if st.Status == domain.StepStatusCompleted {
			completed[name] = true
		}
	}
	return completed
}

// Promote переводит PENDING шаги с выполненными зависимостями в READY,
// а PENDING шаги с упавшей или пропущенной зависимостью — в SKIPPED.
//
// Обход в топологическом порядке, поэтому пропуск распространяется
// транзитивно за один вызов.
func (s *RunState) Promote() (ready, skipped []string) {
	dag := s.registry.DAG()
	completed := s.completedSet()

	for _, node := range dag.Order {
		st, ok := s.Run.Steps[node.ID]
		if !ok || st.Status != domain.StepStatusPending {
			continue
		}

		blocked := false
		for _, dep := range node.DependsOn {
			switch s.Run.StepStatus(dep.ID) {
			case domain.StepStatusFailed, domain.StepStatusSkipped:
				blocked = true
			}
		}

		switch {
		case blocked:
			s.Run.MarkStepSkipped(node.ID, domain.SkipReasonDependencyFailed)
			skipped = append(skipped, node.ID)
		case dag.DependenciesMet(node.ID, completed):
			s.Run.MarkStepReady(node.ID)
			ready = append(ready, node.ID)
		}
	}
	return ready, skipped
}

// Undispatched возвращает READY шаги без воркера в порядке реестра.
func (s *RunState) Undispatched() []string {
	out := make([]string, 0)
	for _, name := range s.Run.StepsWithStatus(domain.StepStatusReady) {
		if !s.dispatched[name] {
			out = append(out, name)
		}
	}
	return out
}

// MarkDispatched отмечает, что для шага запущен воркер.
func (s *RunState) MarkDispatched(name string) {
	s.dispatched[name] = true
	if s.Run.Status == domain.RunStatusStarted {
		s.Run.MarkInProgress()
	}
}

// ApplyStarted фиксирует, что воркер взял шаг.
func (s *RunState) ApplyStarted(name string, at time.Time) {
	s.Run.MarkStepRunning(name, at)
}

// ApplySuccess фиксирует успешное завершение шага.
//
// Для обязательного шага в том же переходе заполняется PropertyID.
// Шаги, пропущенные из-за этого шага ранее, возвращаются в PENDING.
func (s *RunState) ApplySuccess(name string, result *steps.Result, at time.Time) []string {
	delete(s.dispatched, name)
	s.Run.MarkStepCompleted(name, at)

	if name == s.registry.Mandatory() && result != nil {
		s.Run.PropertyID = result.PropertyID
	}

	readmitted := make([]string, 0)
	for _, dep := range s.registry.Dependents(name) {
		st := s.Run.Steps[dep]
		if st != nil && st.Status == domain.StepStatusSkipped && st.SkipReason.Recoverable() {
			s.Run.MarkStepPending(dep)
			readmitted = append(readmitted, dep)
		}
	}
	return readmitted
}

// ApplyFailure фиксирует ошибку шага и пропускает зависящие от него шаги.
//
// Ошибка обязательного шага пропускает все остальные незавершённые шаги.
func (s *RunState) ApplyFailure(name, message string, at time.Time) []string {
	delete(s.dispatched, name)
	s.Run.MarkStepFailed(name, message, at)

	skipped := make([]string, 0)
	if name == s.registry.Mandatory() {
		for _, other := range s.Run.Order {
			if other == name {
				continue
			}
			if st := s.Run.Steps[other]; st != nil && !st.Status.IsTerminal() && !s.dispatched[other] {
				s.Run.MarkStepSkipped(other, domain.SkipReasonMandatoryFailed)
				skipped = append(skipped, other)
			}
		}
		return skipped
	}

	for _, dep := range s.registry.Dependents(name) {
		if st := s.Run.Steps[dep]; st != nil && st.Status == domain.StepStatusPending {
			s.Run.MarkStepSkipped(dep, domain.SkipReasonDependencyFailed)
			skipped = append(skipped, dep)
		}
	}
	return skipped
}

// ApplyInterrupted фиксирует шаг, прерванный отменой run'а или
// остановкой процесса.
//
// При отмене шаг становится SKIPPED, при остановке — снова PENDING,
// чтобы его подхватил ResumeInterrupted.
func (s *RunState) ApplyInterrupted(name string) {
	delete(s.dispatched, name)
	if s.cancelled {
		s.Run.MarkStepSkipped(name, domain.SkipReasonCancelled)
		return
	}
	st := s.Run.Steps[name]
	st.Status = domain.StepStatusPending
	st.StartedAt = nil
}

// Cancel помечает run отменённым и пропускает все ещё не отправленные шаги.
func (s *RunState) Cancel() []string {
	s.cancelled = true

	skipped := make([]string, 0)
	for _, name := range s.Run.Order {
		st := s.Run.Steps[name]
		if st == nil || s.dispatched[name] {
			continue
		}
		if st.Status == domain.StepStatusPending || st.Status == domain.StepStatusReady {
			s.Run.MarkStepSkipped(name, domain.SkipReasonCancelled)
			skipped = append(skipped, name)
		}
	}
	return skipped
}

// ValidateRetry проверяет, можно ли повторить шаг.
func (s *RunState) ValidateRetry(name string) error {
	st, ok := s.Run.Steps[name]
	if !ok || !s.registry.Has(name) {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidState, name)
	}
	if st.Status != domain.StepStatusFailed {
		return fmt.Errorf("%w: step %s is %s, only failed steps can be retried", ErrInvalidState, name, st.Status)
	}

	def, err := s.registry.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	for _, dep := range def.DependsOn {
		if s.Run.StepStatus(dep) != domain.StepStatusCompleted {
			return fmt.Errorf("%w: step %s waits for %s (%s)", ErrDependencyNotReady, name, dep, s.Run.StepStatus(dep))
		}
	}
	return nil
}

// ResetForRetry возвращает упавший шаг в READY.
// Решение о кэше не трогается.
func (s *RunState) ResetForRetry(name string) {
	s.Run.ResetStepForRetry(name)
	s.Run.MarkInProgress()
}

// ResetInterrupted возвращает READY и RUNNING шаги в PENDING
// (после рестарта процесса у них нет воркеров).
func (s *RunState) ResetInterrupted() []string {
	reset := make([]string, 0)
	for _, name := range s.Run.Order {
		st := s.Run.Steps[name]
		if st != nil && st.Status.IsActive() {
			st.Status = domain.StepStatusPending
			st.StartedAt = nil
			reset = append(reset, name)
		}
	}
	return reset
}

// InFlight возвращает количество шагов с запущенным воркером.
func (s *RunState) InFlight() int {
	return len(s.dispatched)
}

// FinalStatus вычисляет финальный статус run'а.
func (s *RunState) FinalStatus() domain.RunStatus {
	switch {
	case s.cancelled:
		return domain.RunStatusCancelled
	case s.Run.StepStatus(s.registry.Mandatory()) == domain.StepStatusCompleted:
		return domain.RunStatusCompleted
	default:
		return domain.RunStatusFailed
	}
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	var stats RunStats
	for _, st := range s.Run.Steps {
		stats.TotalSteps++
		switch st.Status {
		case domain.StepStatusCompleted:
			stats.CompletedSteps++
		case domain.StepStatusRunning, domain.StepStatusReady:
			stats.RunningSteps++
		case domain.StepStatusFailed:
			stats.FailedSteps++
		case domain.StepStatusSkipped:
			stats.SkippedSteps++
		default:
			stats.PendingSteps++
		}
	}
	return stats
}

// RunStats — статистика выполнения run.
type RunStats struct {
	TotalSteps     int
	CompletedSteps int
	RunningSteps   int
	FailedSteps    int
	SkippedSteps   int
	PendingSteps   int
}
