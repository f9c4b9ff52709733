package steps

import (
	"fmt"
	"slices"

	"github.com/shaiso/onboarder/internal/engine"
)

// Registry — проверенная таблица шагов.
//
// Неизменяем после создания, безопасен для конкурентного чтения.
type Registry struct {
	defs      []Definition
	index     map[string]int
	dag       *engine.DAG
	mandatory string
}

// NewRegistry проверяет таблицу шагов и строит граф зависимостей.
//
// Проверки:
//   - граф ацикличен, зависимости существуют (engine.BuildDAG)
//   - у каждого шага есть исполнитель
//   - ровно один обязательный шаг, без зависимостей
//   - каждый необязательный шаг транзитивно зависит от обязательного
func NewRegistry(defs ...Definition) (*Registry, error) {
	specs := make([]engine.NodeSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, engine.NodeSpec{ID: d.Name, DependsOn: d.DependsOn})
	}

	dag, err := engine.BuildDAG(specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
	}

	r := &Registry{
		defs:  slices.Clone(defs),
		index: make(map[string]int, len(defs)),
		dag:   dag,
	}

	for i, d := range defs {
		r.index[d.Name] = i

		if d.Executor == nil {
			return nil, fmt.Errorf("%w: step %s has no executor", ErrInvalidRegistry, d.Name)
		}
		if !d.Mandatory {
			continue
		}
		if r.mandatory != "" {
			return nil, fmt.Errorf("%w: more than one mandatory step (%s, %s)", ErrInvalidRegistry, r.mandatory, d.Name)
		}
		if len(d.DependsOn) > 0 {
			return nil, fmt.Errorf("%w: mandatory step %s must not have dependencies", ErrInvalidRegistry, d.Name)
		}
		r.mandatory = d.Name
	}

	if r.mandatory == "" {
		return nil, fmt.Errorf("%w: no mandatory step", ErrInvalidRegistry)
	}

	gated := make(map[string]bool)
	for _, name := range dag.TransitiveDependents(r.mandatory) {
		gated[name] = true
	}
	for _, d := range defs {
		if !d.Mandatory && !gated[d.Name] {
			return nil, fmt.Errorf("%w: step %s does not depend on mandatory step %s",
				ErrInvalidRegistry, d.Name, r.mandatory)
		}
	}

	return r, nil
}

// Steps возвращает определения шагов в порядке объявления.
func (r *Registry) Steps() []Definition {
	return slices.Clone(r.defs)
}

// Names возвращает имена шагов в порядке объявления.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	return names
}

// Get возвращает определение шага по имени.
func (r *Registry) Get(name string) (Definition, error) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	return r.defs[i], nil
}

// Has проверяет, есть ли шаг в реестре.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// DAG возвращает граф зависимостей.
func (r *Registry) DAG() *engine.DAG {
	return r.dag
}

// Mandatory возвращает имя обязательного шага.
func (r *Registry) Mandatory() string {
	return r.mandatory
}

// Optional возвращает имена необязательных шагов в порядке объявления.
func (r *Registry) Optional() []string {
	names := make([]string, 0, len(r.defs)-1)
	for _, d := range r.defs {
		if !d.Mandatory {
			names = append(names, d.Name)
		}
	}
	return names
}

// Dependents возвращает все шаги, транзитивно зависящие от name.
func (r *Registry) Dependents(name string) []string {
	return r.dag.TransitiveDependents(name)
}

// RateLimitClasses возвращает множество классов ограничения частоты.
func (r *Registry) RateLimitClasses() []string {
	classes := make([]string, 0)
	for _, d := range r.defs {
		if d.RateLimitClass != "" && !slices.Contains(classes, d.RateLimitClass) {
			classes = append(classes, d.RateLimitClass)
		}
	}
	return classes
}
