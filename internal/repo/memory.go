package repo

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/domain"
)

// MemorySessionRepo — хранилище run'ов в памяти процесса.
//
// Хранит и отдаёт копии, поэтому вызывающий не может изменить
// сохранённое состояние в обход Update.
type MemorySessionRepo struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.WorkflowRun

	// history — все сохранённые версии по порядку (для тестов).
	history map[uuid.UUID][]*domain.WorkflowRun
	record  bool
}

// NewMemorySessionRepo создаёт пустое хранилище.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		runs:    make(map[uuid.UUID]*domain.WorkflowRun),
		history: make(map[uuid.UUID][]*domain.WorkflowRun),
	}
}

// RecordHistory включает запоминание каждой сохранённой версии.
func (r *MemorySessionRepo) RecordHistory() *MemorySessionRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = true
	return r
}

// History возвращает все сохранённые версии run'а.
func (r *MemorySessionRepo) History(id uuid.UUID) []*domain.WorkflowRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history[id])
}

// Create сохраняет новый run.
func (r *MemorySessionRepo) Create(_ context.Context, run *domain.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.SessionID]; exists {
		return fmt.Errorf("%w: session %s", ErrAlreadyExists, run.SessionID)
	}
	r.store(run)
	return nil
}

// Get возвращает копию run.
func (r *MemorySessionRepo) Get(_ context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// Update сохраняет run с проверкой версии.
func (r *MemorySessionRepo) Update(_ context.Context, run *domain.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.runs[run.SessionID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != run.Version {
		return fmt.Errorf("%w: session %s at version %d, stored %d",
			ErrConflict, run.SessionID, run.Version, current.Version)
	}

	run.Version++
	r.store(run)
	return nil
}

// LatestByProperty возвращает последний run объекта.
func (r *MemorySessionRepo) LatestByProperty(_ context.Context, propertyID string) (*domain.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.WorkflowRun
	for _, run := range r.runs {
		if run.PropertyID != propertyID {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

// ListActive возвращает незавершённые run'ы, старые первыми.
func (r *MemorySessionRepo) ListActive(_ context.Context, limit int) ([]*domain.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*domain.WorkflowRun, 0)
	for _, run := range r.runs {
		if !run.Status.IsTerminal() {
			active = append(active, run.Clone())
		}
	}
	slices.SortFunc(active, func(a, b *domain.WorkflowRun) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (r *MemorySessionRepo) store(run *domain.WorkflowRun) {
	c := run.Clone()
	r.runs[run.SessionID] = c
	if r.record {
		r.history[run.SessionID] = append(r.history[run.SessionID], c.Clone())
	}
}
