package api

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/domain"
)

// Service — операции онбординга, доступные через API.
type Service interface {
	Submit(ctx context.Context, url string, forceRefresh bool) (*domain.WorkflowRun, error)
	Status(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error)
	RetryStep(ctx context.Context, id uuid.UUID, step string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	MissingExtractions(ctx context.Context, propertyID string) ([]string, error)
}

// HealthCheck проверяет доступность зависимости.
type HealthCheck func(ctx context.Context) error

// Handler — обработчики API.
type Handler struct {
	service  Service
	checks   map[string]HealthCheck
	validate *validator.Validate
	logger   *slog.Logger
}

// Config — зависимости Handler.
type Config struct {
	Service Service

	// Checks — проверки для /healthz по имени зависимости.
	Checks map[string]HealthCheck

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  cfg.Service,
		checks:   cfg.Checks,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "api"),
	}
}
