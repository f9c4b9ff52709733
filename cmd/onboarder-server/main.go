// onboarder-server — сервис онбординга объектов размещения.
//
// Сервис:
//   - Принимает заявки через HTTP API и очередь onboarding.submit
//   - Выполняет шаги извлечения через сервис извлечения
//   - Хранит run'ы в PostgreSQL (или в памяти без ONBOARDER_DB_URL)
//   - Хранит артефакты кэша в Redis (или в памяти без ONBOARDER_REDIS_URL)
//   - Публикует события step.updated и run.finished
//   - Периодически чистит устаревший кэш
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/onboarder/internal/api"
	"github.com/shaiso/onboarder/internal/cache"
	"github.com/shaiso/onboarder/internal/config"
	"github.com/shaiso/onboarder/internal/janitor"
	"github.com/shaiso/onboarder/internal/mq"
	"github.com/shaiso/onboarder/internal/orchestrator"
	"github.com/shaiso/onboarder/internal/repo"
	"github.com/shaiso/onboarder/internal/steps"
	"github.com/shaiso/onboarder/internal/telemetry"
)

const serviceName = "onboarder"

func main() {
	cfg, err := config.Load(os.Getenv("ONBOARDER_CONFIG"))
	if err != nil {
		telemetry.SetupLogger("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting onboarder-server", "addr", cfg.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	checks := make(map[string]api.HealthCheck)

	// Run State Store
	var store orchestrator.RunStore
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		store = repo.NewSessionRepo(pool)
		checks["postgres"] = pingPostgres(pool)
		logger.Info("database connected")
	} else {
		store = repo.NewMemorySessionRepo()
		logger.Warn("ONBOARDER_DB_URL not set, runs are kept in memory")
	}

	// Cache Store
	var cacheStore cache.Store
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		cacheStore = cache.NewRedisStore(client)
		checks["redis"] = pingRedis(client)
		logger.Info("redis connected")
	} else {
		cacheStore = cache.NewMemoryStore()
		logger.Warn("ONBOARDER_REDIS_URL not set, cache is kept in memory")
	}

	decider := cache.NewDecisionService(cache.DecisionConfig{
		Store:  cacheStore,
		MaxAge: cfg.CacheMaxAge,
		Logger: logger,
	})

	// Step Registry
	executors := steps.RecordAll(cacheStore,
		steps.RemoteExecutors(cfg.ExtractorURL, nil, steps.ReferenceNames...),
		logger,
	)
	registry, err := steps.NewReferenceRegistry(executors)
	if err != nil {
		logger.Error("invalid step registry", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	var publisher orchestrator.EventPublisher
	var mqConn *mq.Connection
	if cfg.RabbitMQURL == "" {
		logger.Warn("ONBOARDER_RABBITMQ_URL not set, running in API-only mode")
	} else if mqConn, err = mq.Dial(cfg.RabbitMQURL, logger); err != nil {
		logger.Warn("RabbitMQ not available, running in API-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
		checks["rabbitmq"] = func(context.Context) error {
			if !mqConn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
		logger.Info("RabbitMQ connected")
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:       registry,
		Store:          store,
		Decider:        decider,
		Publisher:      publisher,
		Conn:           mqConn,
		MaxConcurrency: cfg.MaxConcurrency,
		ClassLimits:    cfg.ClassLimits,
		StepTimeout:    cfg.StepTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Cache janitor
	jan, err := janitor.New(janitor.Config{
		Store:     cacheStore,
		Schedule:  cfg.CachePurgeCron,
		Retention: cfg.CacheRetention,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	go jan.Run(ctx)

	// HTTP API
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Service: orch,
		Checks:  checks,
		Logger:  logger,
	}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	// Незавершённые run'ы остаются в хранилище и поднимаются при следующем старте.
	orch.Stop()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("onboarder-server stopped")
}

func pingPostgres(pool *pgxpool.Pool) api.HealthCheck {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}

func pingRedis(client *redis.Client) api.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
