package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/onboarder/internal/domain"
)

// DefaultMaxAge — политика максимального возраста кэша.
const DefaultMaxAge = 24 * time.Hour

// DecisionConfig — конфигурация DecisionService.
type DecisionConfig struct {
	Store  Store
	MaxAge time.Duration
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// DecisionService принимает решение о свежести кэша для run.
// Сервис только читает хранилище.
type DecisionService struct {
	store  Store
	maxAge time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewDecisionService создаёт DecisionService.
func NewDecisionService(cfg DecisionConfig) *DecisionService {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DecisionService{
		store:  cfg.Store,
		maxAge: cfg.MaxAge,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "cache_decision"),
	}
}

// Decide возвращает решение о кэше для домена.
//
// forceRefresh или отсутствие кэша дают UseCache=false.
// Ошибка чтения хранилища трактуется как отсутствие кэша.
// Ошибка возвращается только для пустого домена.
func (s *DecisionService) Decide(ctx context.Context, domainName string, forceRefresh bool) (domain.CacheDecision, error) {
	decision := domain.CacheDecision{
		MaxAgeSeconds: int(s.maxAge / time.Second),
		ComputedAt:    s.clock.Now().UTC(),
	}

	if domainName == "" {
		return decision, ErrEmptyDomain
	}
	if forceRefresh || s.store == nil {
		return decision, nil
	}

	entry, err := s.store.Latest(ctx, domainName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("cache store unavailable, falling back to fresh crawl",
				"domain", domainName,
				"error", err,
			)
		}
		return decision, nil
	}

	cachedAt := entry.CachedAt
	decision.CachedAt = &cachedAt
	decision.UseCache = decision.ComputedAt.Sub(cachedAt) < s.maxAge
	return decision, nil
}
