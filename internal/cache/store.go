package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Типы закэшированного содержимого.
const (
	ContentMarkdown = "markdown"
	ContentImages   = "images"
)

// Entry — закэшированный артефакт домена.
type Entry struct {
	Domain      string    `json:"domain"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	CachedAt    time.Time `json:"cached_at"`
}

// Store — хранилище артефактов.
type Store interface {
	// Latest возвращает самый свежий артефакт домена (любого типа).
	// ErrNotFound, если артефактов нет.
	Latest(ctx context.Context, domain string) (*Entry, error)

	// Get возвращает артефакт конкретного типа.
	Get(ctx context.Context, domain, contentType string) (*Entry, error)

	// Put сохраняет артефакт, перезаписывая предыдущий того же типа.
	Put(ctx context.Context, entry Entry) error

	// Purge удаляет артефакты, закэшированные раньше olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// DomainOf извлекает из URL нормализованный домен:
// нижний регистр, без порта и префикса www.
func DomainOf(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}
	return host, nil
}
