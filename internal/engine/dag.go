package engine

import (
	"fmt"
	"slices"
)

// NodeSpec — описание вершины графа: имя шага и его зависимости.
type NodeSpec struct {
	ID        string
	DependsOn []string
}

// Node — узел в DAG.
type Node struct {
	// ID — имя шага.
	ID string

	// Index — позиция шага в исходной таблице (для стабильного порядка).
	Index int

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф шагов.
type DAG struct {
	// Nodes — все узлы графа (имя → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа), в порядке объявления.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG строит и проверяет DAG.
//
// Возвращает *ValidationError для пустых и повторяющихся имён,
// неизвестных зависимостей и зависимостей шага от самого себя,
// ErrCyclicDependency — если граф содержит цикл.
func BuildDAG(specs []NodeSpec) (*DAG, error) {
	if len(specs) == 0 {
		return nil, ErrEmptySteps
	}

	dag := &DAG{
		Nodes:     make(map[string]*Node, len(specs)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём все узлы
	for i, spec := range specs {
		if err := dag.addNode(spec, i); err != nil {
			return nil, err
		}
	}

	// Второй проход: связываем узлы по зависимостям
	for _, spec := range specs {
		if err := dag.linkDependencies(spec); err != nil {
			return nil, err
		}
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addNode добавляет узел в DAG.
func (d *DAG) addNode(spec NodeSpec, index int) error {
	if spec.ID == "" {
		return NewValidationError("", "name", fmt.Sprintf("step #%d has empty name", index), ErrEmptyStepID)
	}
	if _, exists := d.Nodes[spec.ID]; exists {
		return NewValidationError(spec.ID, "name", "duplicate step name", ErrDuplicateStepID)
	}

	d.Nodes[spec.ID] = &Node{
		ID:         spec.ID,
		Index:      index,
		DependsOn:  make([]*Node, 0),
		Dependents: make([]*Node, 0),
	}
	return nil
}

// linkDependencies связывает узлы по зависимостям.
func (d *DAG) linkDependencies(spec NodeSpec) error {
	node := d.Nodes[spec.ID]

	for _, depID := range spec.DependsOn {
		if depID == spec.ID {
			return NewValidationError(spec.ID, "depends_on", "step depends on itself", ErrSelfDependency)
		}

		depNode, exists := d.Nodes[depID]
		if !exists {
			return NewValidationError(spec.ID, "depends_on",
				fmt.Sprintf("depends on unknown step: %s", depID), ErrMissingDependency)
		}

		d.addEdge(depNode, node)
	}

	return nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты игнорируются, чтобы не учитывать InDegree дважды.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.Nodes {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
	sortByIndex(d.RootNodes)
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		stuck := make([]string, 0)
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependency, stuck)
	}

	return order, nil
}

// ReadyNodes возвращает узлы, готовые к запуску.
//
// Узел готов, если все его зависимости в completed, а сам узел
// ещё не запускался (не в started). Порядок — порядок объявления.
func (d *DAG) ReadyNodes(completed, started map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, node := range d.Nodes {
		if completed[node.ID] || started[node.ID] {
			continue
		}
		if d.DependenciesMet(node.ID, completed) {
			ready = append(ready, node)
		}
	}

	sortByIndex(ready)
	return ready
}

// DependenciesMet проверяет, что все зависимости узла завершены.
func (d *DAG) DependenciesMet(id string, completed map[string]bool) bool {
	node, ok := d.Nodes[id]
	if !ok {
		return false
	}
	for _, dep := range node.DependsOn {
		if !completed[dep.ID] {
			return false
		}
	}
	return true
}

// TransitiveDependents возвращает все узлы, прямо или косвенно
// зависящие от id, в топологическом порядке.
func (d *DAG) TransitiveDependents(id string) []string {
	node, ok := d.Nodes[id]
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	stack := append([]*Node(nil), node.Dependents...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		stack = append(stack, n.Dependents...)
	}

	result := make([]string, 0, len(seen))
	for _, n := range d.Order {
		if seen[n.ID] {
			result = append(result, n.ID)
		}
	}
	return result
}

// GetNode возвращает узел по имени.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

func sortByIndex(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		return a.Index - b.Index
	})
}
