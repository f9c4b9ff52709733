package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry // domain → contentType → entry
	err     error
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]Entry),
	}
}

// FailWith заставляет все операции возвращать err (nil — снять сбой).
// Используется для имитации недоступного хранилища.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Latest возвращает самый свежий артефакт домена.
func (s *MemoryStore) Latest(_ context.Context, domain string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}

	var latest *Entry
	for _, e := range s.entries[domain] {
		if latest == nil || e.CachedAt.After(latest.CachedAt) {
			latest = &e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// Get возвращает артефакт конкретного типа.
func (s *MemoryStore) Get(_ context.Context, domain, contentType string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}

	e, ok := s.entries[domain][contentType]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Put сохраняет артефакт.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	if entry.Domain == "" {
		return ErrEmptyDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	byType, ok := s.entries[entry.Domain]
	if !ok {
		byType = make(map[string]Entry)
		s.entries[entry.Domain] = byType
	}
	byType[entry.ContentType] = entry
	return nil
}

// Purge удаляет устаревшие артефакты.
func (s *MemoryStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}

	removed := 0
	for domain, byType := range s.entries {
		for ct, e := range byType {
			if e.CachedAt.Before(olderThan) {
				delete(byType, ct)
				removed++
			}
		}
		if len(byType) == 0 {
			delete(s.entries, domain)
		}
	}
	return removed, nil
}
