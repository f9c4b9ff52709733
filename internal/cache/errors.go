package cache

import "errors"

var (
	// ErrNotFound — для домена нет закэшированных артефактов.
	ErrNotFound = errors.New("cache entry not found")

	// ErrEmptyDomain — не указан домен.
	ErrEmptyDomain = errors.New("empty domain")

	// ErrInvalidURL — URL не удалось разобрать в домен.
	ErrInvalidURL = errors.New("invalid url")
)
