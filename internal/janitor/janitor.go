package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/onboarder/internal/telemetry"
)

// ErrInvalidSchedule — некорректное cron-выражение.
var ErrInvalidSchedule = errors.New("invalid purge schedule")

// Purger удаляет артефакты, закэшированные раньше olderThan.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// Config — конфигурация Janitor.
type Config struct {
	Store     Purger
	Schedule  string        // cron, default "0 3 * * *"
	Retention time.Duration // default 30 дней
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Janitor — периодическая очистка кэша.
type Janitor struct {
	store     Purger
	schedule  cron.Schedule
	retention time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
}

// New создаёт Janitor.
func New(cfg Config) (*Janitor, error) {
	if cfg.Store == nil {
		return nil, errors.New("janitor: store is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	return &Janitor{
		store:     cfg.Store,
		schedule:  schedule,
		retention: cfg.Retention,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "janitor"),
	}, nil
}

// Tick выполняет одну очистку. Возвращает число удалённых артефактов.
func (j *Janitor) Tick(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().Add(-j.retention)

	purged, err := j.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}

	telemetry.CachePurged.Add(float64(purged))
	j.logger.Info("cache purged", "purged", purged, "cutoff", cutoff)
	return purged, nil
}

// Run выполняет очистку по расписанию до отмены ctx.
// Ошибка очистки логируется и не прерывает цикл.
func (j *Janitor) Run(ctx context.Context) {
	for {
		now := j.clock.Now()
		next := NextPurge(j.schedule, now)
		j.logger.Debug("next cache purge scheduled", "at", next)

		timer := j.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		if _, err := j.Tick(ctx); err != nil {
			j.logger.Error("cache purge failed", "error", err)
		}
	}
}
