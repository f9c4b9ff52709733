package domain

import "time"

// CacheDecision — решение о свежести кэша, одно на весь run.
//
// Создаётся один раз до запуска первого шага, читающего кэш,
// и больше не меняется. Retry отдельного шага использует то же решение.
type CacheDecision struct {
	// UseCache — можно ли использовать закэшированные артефакты домена.
	UseCache bool `json:"use_cache"`

	// MaxAgeSeconds — политика максимального возраста кэша.
	MaxAgeSeconds int `json:"max_age_seconds"`

	// ComputedAt — момент принятия решения.
	ComputedAt time.Time `json:"computed_at"`

	// CachedAt — время самого свежего артефакта (nil, если кэша нет).
	CachedAt *time.Time `json:"cached_at,omitempty"`
}
