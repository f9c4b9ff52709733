package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/mq"
	"github.com/shaiso/onboarder/internal/steps"
	"github.com/shaiso/onboarder/internal/telemetry"
)

// Значения конфигурации по умолчанию.
const (
	defaultMaxConcurrency = 4
	defaultClassLimit     = 1
	defaultStepTimeout    = 5 * time.Minute
	defaultResumeBatch    = 100
)

// RunStore — хранилище run'ов.
//
// Update — compare-and-set по WorkflowRun.Version: при успехе версия
// увеличивается, при расхождении возвращается ошибка конфликта.
type RunStore interface {
	Create(ctx context.Context, run *domain.WorkflowRun) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error)
	Update(ctx context.Context, run *domain.WorkflowRun) error
	LatestByProperty(ctx context.Context, propertyID string) (*domain.WorkflowRun, error)
	ListActive(ctx context.Context, limit int) ([]*domain.WorkflowRun, error)
}

// CacheDecider принимает решение о кэше для домена.
type CacheDecider interface {
	Decide(ctx context.Context, domainName string, forceRefresh bool) (domain.CacheDecision, error)
}

// EventPublisher публикует события о ходе run'ов.
type EventPublisher interface {
	PublishStepUpdated(ctx context.Context, payload mq.StepUpdatedPayload) error
	PublishRunFinished(ctx context.Context, payload mq.RunFinishedPayload) error
}

// Config — конфигурация Orchestrator.
type Config struct {
	Registry *steps.Registry
	Store    RunStore
	Decider  CacheDecider

	// Publisher — необязательный получатель событий.
	Publisher EventPublisher

	// Conn — соединение с RabbitMQ для приёма заявок из onboarding.submit.
	// nil — заявки принимаются только через API.
	Conn *mq.Connection

	// MaxConcurrency — общий лимит одновременно выполняемых шагов (default: 4).
	MaxConcurrency int

	// ClassLimits — лимиты по классам ограничения частоты.
	// Для класса без лимита действует 1.
	ClassLimits map[string]int

	// StepTimeout — таймаут шага без собственного Timeout (default: 5m).
	StepTimeout time.Duration

	// ResumeBatch — сколько незавершённых run'ов поднимать при старте (default: 100).
	ResumeBatch int

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Orchestrator ведёт run'ы онбординга.
//
// Каждый run ведёт своя горутина-координатор, единственный писатель
// WorkflowRun.Steps. Шаги выполняют воркеры под общим семафором пула
// и семафором своего класса.
type Orchestrator struct {
	registry  *steps.Registry
	store     RunStore
	decider   CacheDecider
	publisher EventPublisher
	conn      *mq.Connection

	pool        *semaphore.Weighted
	classes     map[string]*semaphore.Weighted
	stepTimeout time.Duration
	resumeBatch int

	clock  clockwork.Clock
	logger *slog.Logger

	// baseCtx отменяется в Stop; от него наследуются контексты run'ов.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	activeRuns map[uuid.UUID]*runHandle
	stopped    bool
}

// runHandle — связь с координатором активного run'а.
type runHandle struct {
	sessionID uuid.UUID
	cancel    context.CancelCauseFunc
	retries   chan retryRequest
	done      chan struct{}

	// final — снимок run'а на момент выхода координатора.
	// Читается только после закрытия done.
	final *domain.WorkflowRun
}

// New создаёт Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil || cfg.Store == nil || cfg.Decider == nil {
		return nil, fmt.Errorf("%w: registry, store and decider are required", ErrInvalidConfig)
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	resumeBatch := cfg.ResumeBatch
	if resumeBatch <= 0 {
		resumeBatch = defaultResumeBatch
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classes := make(map[string]*semaphore.Weighted)
	for _, class := range cfg.Registry.RateLimitClasses() {
		limit := cfg.ClassLimits[class]
		if limit <= 0 {
			limit = defaultClassLimit
		}
		classes[class] = semaphore.NewWeighted(int64(limit))
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Orchestrator{
		registry:    cfg.Registry,
		store:       cfg.Store,
		decider:     cfg.Decider,
		publisher:   cfg.Publisher,
		conn:        cfg.Conn,
		pool:        semaphore.NewWeighted(int64(maxConcurrency)),
		classes:     classes,
		stepTimeout: stepTimeout,
		resumeBatch: resumeBatch,
		clock:       clock,
		logger:      logger.With("component", "orchestrator"),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		activeRuns:  make(map[uuid.UUID]*runHandle),
	}, nil
}

// Start поднимает незавершённые run'ы и, если задано соединение
// с брокером, начинает принимать заявки из onboarding.submit.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.logger.Info("starting orchestrator",
		"steps", len(o.registry.Names()),
		"classes", o.registry.RateLimitClasses(),
	)

	if o.conn != nil {
		consumer := mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueSubmit,
			Handler:  o.handleSubmit,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := consumer.Run(o.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("submit consumer stopped", "error", err)
			}
		}()
	}

	resumed, err := o.ResumeInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("resume interrupted runs: %w", err)
	}

	o.logger.Info("orchestrator started", "resumed_runs", resumed)
	return nil
}

// Stop прекращает выдачу новых шагов, дожидается выполняющихся
// и останавливает координаторы. Незавершённые run'ы остаются
// в хранилище и поднимаются следующим Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	active := len(o.activeRuns)
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator", "active_runs", active)

	o.baseCancel()
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped сообщает, вызван ли Stop.
func (o *Orchestrator) IsStopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// Registry возвращает реестр шагов.
func (o *Orchestrator) Registry() *steps.Registry {
	return o.registry
}

// launch регистрирует run как активный и запускает его координатор.
func (o *Orchestrator) launch(run *domain.WorkflowRun) (*runHandle, error) {
	runCtx, cancel := context.WithCancelCause(o.baseCtx)
	h := &runHandle{
		sessionID: run.SessionID,
		cancel:    cancel,
		retries:   make(chan retryRequest),
		done:      make(chan struct{}),
	}

	if err := o.addActiveRun(h); err != nil {
		cancel(err)
		return nil, err
	}

	telemetry.ActiveRuns.Inc()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel(nil)
		o.coordinate(runCtx, h, NewRunState(run, o.registry))
	}()

	return h, nil
}

func (o *Orchestrator) addActiveRun(h *runHandle) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return ErrOrchestratorStopped
	}
	if _, exists := o.activeRuns[h.sessionID]; exists {
		return ErrRunAlreadyActive
	}
	o.activeRuns[h.sessionID] = h
	return nil
}

func (o *Orchestrator) removeActiveRun(id uuid.UUID) {
	o.mu.Lock()
	delete(o.activeRuns, id)
	o.mu.Unlock()
	telemetry.ActiveRuns.Dec()
}

func (o *Orchestrator) activeRun(id uuid.UUID) *runHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeRuns[id]
}

// IsActive сообщает, ведёт ли этот процесс run.
func (o *Orchestrator) IsActive(id uuid.UUID) bool {
	return o.activeRun(id) != nil
}

// ActiveRunsCount возвращает количество активных run'ов.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.activeRuns)
}

// ResumeInterrupted поднимает run'ы, оставшиеся незавершёнными после
// остановки процесса. Шаги в READY и RUNNING возвращаются в PENDING,
// решение о кэше берётся из сохранённого run'а.
func (o *Orchestrator) ResumeInterrupted(ctx context.Context) (int, error) {
	runs, err := o.store.ListActive(ctx, o.resumeBatch)
	if err != nil {
		return 0, fmt.Errorf("list active runs: %w", err)
	}

	resumed := 0
	for _, run := range runs {
		if o.IsActive(run.SessionID) {
			continue
		}

		state := NewRunState(run, o.registry)
		reset := state.ResetInterrupted()
		if len(reset) > 0 {
			run.UpdatedAt = o.clock.Now()
			if err := o.store.Update(ctx, run); err != nil {
				o.logger.Error("failed to reset interrupted run", "session_id", run.SessionID, "error", err)
				continue
			}
		}

		if _, err := o.launch(run); err != nil {
			if errors.Is(err, ErrOrchestratorStopped) {
				return resumed, err
			}
			o.logger.Warn("run not resumed", "session_id", run.SessionID, "reason", err)
			continue
		}

		o.logger.Info("run resumed", "session_id", run.SessionID, "reset_steps", reset)
		resumed++
	}

	return resumed, nil
}
