package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "onboarder"

var (
	// StepsTotal — завершённые попытки шагов по статусу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Finished step attempts by step and resulting status.",
	}, []string{"step", "status"})

	// StepDuration — длительность выполнения шагов.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Step executor duration in seconds.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"step"})

	// StepWaitDuration — время ожидания слота в пуле и семафоре класса.
	StepWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_wait_seconds",
		Help:      "Time a ready step waited for a worker slot.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"rate_limit_class"})

	// RunsTotal — завершённые run'ы по финальному статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Finished onboarding runs by terminal status.",
	}, []string{"status"})

	// ActiveRuns — run'ы, которые сейчас ведёт координатор.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_runs",
		Help:      "Runs currently driven by this process.",
	})

	// CacheDecisions — принятые решения о кэше.
	CacheDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_decisions_total",
		Help:      "Cache decisions by outcome.",
	}, []string{"use_cache"})

	// CachePurged — удалённые janitor'ом артефакты.
	CachePurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_purged_entries_total",
		Help:      "Cache entries removed by the janitor.",
	})

	// Submissions — принятые заявки на онбординг по источнику.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Accepted onboarding submissions by source.",
	}, []string{"source"})

	// StepRetries — принятые запросы на retry шага.
	StepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "step_retries_total",
		Help:      "Accepted single-step retry requests.",
	}, []string{"step"})
)
