package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/shaiso/onboarder/internal/cache"
	"github.com/shaiso/onboarder/internal/domain"
	"github.com/shaiso/onboarder/internal/mq"
	"github.com/shaiso/onboarder/internal/repo"
	"github.com/shaiso/onboarder/internal/steps"
	"github.com/shaiso/onboarder/internal/telemetry"
)

const testURL = "https://www.grand-hotel.example/rooms"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stepFunc = func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error)

func succeed(_ context.Context, rc *steps.RunContext) (*steps.Result, error) {
	if rc.Step == steps.StepPropertyInfo {
		return &steps.Result{PropertyID: "prop-1"}, nil
	}
	return &steps.Result{Outputs: map[string]any{"step": rc.Step}}, nil
}

func failWith(msg string) stepFunc {
	return func(context.Context, *steps.RunContext) (*steps.Result, error) {
		return nil, errors.New(msg)
	}
}

// failFirst падает на первом вызове и выполняется на следующих.
func failFirst(msg string) stepFunc {
	var calls atomic.Int32
	return func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New(msg)
		}
		return succeed(ctx, rc)
	}
}

// blockUntilDone сообщает о старте и ждёт отмены контекста.
func blockUntilDone(started chan<- string) stepFunc {
	return func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
		if started != nil {
			started <- rc.Step
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// recorder запоминает вызовы исполнителей.
type recorder struct {
	mu       sync.Mutex
	calls    map[string]int
	contexts []steps.RunContext
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int)}
}

func (r *recorder) wrap(fn stepFunc) steps.Executor {
	return steps.ExecutorFunc(func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
		r.mu.Lock()
		r.calls[rc.Step]++
		r.contexts = append(r.contexts, *rc)
		r.mu.Unlock()
		return fn(ctx, rc)
	})
}

func (r *recorder) count(step string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[step]
}

func (r *recorder) runContexts() []steps.RunContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]steps.RunContext(nil), r.contexts...)
}

// peak считает максимальное число одновременных вызовов.
type peak struct {
	mu       sync.Mutex
	cur, max int
}

func (p *peak) wrap(d time.Duration) stepFunc {
	return func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
		p.mu.Lock()
		p.cur++
		p.max = max(p.max, p.cur)
		p.mu.Unlock()

		time.Sleep(d)

		p.mu.Lock()
		p.cur--
		p.mu.Unlock()
		return succeed(ctx, rc)
	}
}

func (p *peak) value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

type fakePublisher struct {
	mu    sync.Mutex
	steps []mq.StepUpdatedPayload
	runs  []mq.RunFinishedPayload
}

func (p *fakePublisher) PublishStepUpdated(_ context.Context, payload mq.StepUpdatedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, payload)
	return nil
}

func (p *fakePublisher) PublishRunFinished(_ context.Context, payload mq.RunFinishedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, payload)
	return nil
}

func (p *fakePublisher) finished() []mq.RunFinishedPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mq.RunFinishedPayload(nil), p.runs...)
}

func (p *fakePublisher) stepStatuses(step string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0)
	for _, ev := range p.steps {
		if ev.Step == step {
			out = append(out, ev.Status)
		}
	}
	return out
}

type harness struct {
	orch     *Orchestrator
	registry *steps.Registry
	store    *repo.MemorySessionRepo
	cache    *cache.MemoryStore
	rec      *recorder
	pub      *fakePublisher
}

type option func(*Config)

func withConfig(fn func(*Config)) option {
	return option(fn)
}

// testRegistry собирает эталонную топологию без повторов внутри шага.
func testRegistry(t *testing.T, rec *recorder, overrides map[string]stepFunc) *steps.Registry {
	t.Helper()

	execs := make(map[string]steps.Executor)
	for _, name := range steps.ReferenceNames {
		fn := overrides[name]
		if fn == nil {
			fn = succeed
		}
		execs[name] = rec.wrap(fn)
	}

	defs := steps.Reference(execs)
	for i := range defs {
		defs[i].Retry = nil
	}

	reg, err := steps.NewRegistry(defs...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func newHarnessWithStore(t *testing.T, store *repo.MemorySessionRepo, overrides map[string]stepFunc, opts ...option) *harness {
	t.Helper()

	rec := newRecorder()
	reg := testRegistry(t, rec, overrides)
	cacheStore := cache.NewMemoryStore()
	pub := &fakePublisher{}

	cfg := Config{
		Registry: reg,
		Store:    store,
		Decider: cache.NewDecisionService(cache.DecisionConfig{
			Store: cacheStore,
			Clock: clockwork.NewFakeClockAt(epoch),
		}),
		Publisher:   pub,
		StepTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(orch.Stop)

	return &harness{orch: orch, registry: reg, store: store, cache: cacheStore, rec: rec, pub: pub}
}

func newHarness(t *testing.T, overrides map[string]stepFunc, opts ...option) *harness {
	return newHarnessWithStore(t, repo.NewMemorySessionRepo().RecordHistory(), overrides, opts...)
}

func (h *harness) run(t *testing.T, force bool) *domain.WorkflowRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run, err := h.orch.Run(ctx, testURL, force)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return run
}

func (h *harness) wait(t *testing.T, id uuid.UUID) *domain.WorkflowRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run, err := h.orch.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return run
}

func (h *harness) stored(t *testing.T, id uuid.UUID) *domain.WorkflowRun {
	t.Helper()
	run, err := h.orch.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return run
}

func waitStarted(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case name := <-started:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("no step started")
		return ""
	}
}

// eventually ждёт выполнения условия не дольше 5 секунд.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectStatus(t *testing.T, run *domain.WorkflowRun, want domain.RunStatus) {
	t.Helper()
	if run.Status != want {
		t.Errorf("expected run %s, got %s", want, run.Status)
	}
}

func expectStep(t *testing.T, run *domain.WorkflowRun, step string, want domain.StepStatus) {
	t.Helper()
	if got := run.StepStatus(step); got != want {
		t.Errorf("expected %s %s, got %s", step, want, got)
	}
}

func expectError(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

// assertInvariants проверяет каждую сохранённую версию run'а:
// RUNNING, COMPLETED и FAILED шаги только при выполненных зависимостях,
// PropertyID заполнен тогда и только тогда, когда выполнен обязательный шаг.
func assertInvariants(t *testing.T, h *harness, id uuid.UUID) {
	t.Helper()

	history := h.store.History(id)
	if len(history) == 0 {
		t.Fatal("no stored versions")
	}

	for i, snap := range history {
		for name, st := range snap.Steps {
			switch st.Status {
			case domain.StepStatusRunning, domain.StepStatusCompleted, domain.StepStatusFailed:
				def, err := h.registry.Get(name)
				if err != nil {
					t.Fatalf("version %d: %v", i, err)
				}
				for _, dep := range def.DependsOn {
					if snap.StepStatus(dep) != domain.StepStatusCompleted {
						t.Errorf("version %d: %s is %s while %s is %s", i, name, st.Status, dep, snap.StepStatus(dep))
					}
				}
			}
		}

		mandatoryDone := snap.StepStatus(h.registry.Mandatory()) == domain.StepStatusCompleted
		if mandatoryDone != snap.HasProperty() {
			t.Errorf("version %d: mandatory completed=%v but has property=%v", i, mandatoryDone, snap.HasProperty())
		}
	}
}


func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	expectError(t, err, ErrInvalidConfig)
}

// --- Scenarios ---

func TestRun_AllStepsSucceed(t *testing.T) {
	h := newHarness(t, nil)

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	if run.PropertyID != "prop-1" {
		t.Errorf("expected property prop-1, got %q", run.PropertyID)
	}
	if got := run.CompletedSteps(); len(got) != 9 {
		t.Errorf("expected 9 completed steps, got %v", got)
	}
	if len(run.Errors) != 0 {
		t.Errorf("expected no errors, got %v", run.Errors)
	}
	if run.Domain != "grand-hotel.example" {
		t.Errorf("expected domain grand-hotel.example, got %s", run.Domain)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}

	stored := h.stored(t, run.SessionID)
	if stored.Status != run.Status {
		t.Errorf("stored status %s differs from returned %s", stored.Status, run.Status)
	}
	if !reflect.DeepEqual(run.Record(), stored.Record()) {
		t.Errorf("stored record differs from returned run:\n%+v\n%+v", stored.Record(), run.Record())
	}

	rec := stored.Record()
	if rec.PropertyID == nil || *rec.PropertyID != "prop-1" {
		t.Errorf("expected stored property prop-1, got %v", rec.PropertyID)
	}
	if rec.CurrentStep != nil {
		t.Errorf("finished run should have no current step, got %s", *rec.CurrentStep)
	}

	for _, name := range steps.ReferenceNames {
		if got := h.rec.count(name); got != 1 {
			t.Errorf("%s: expected 1 call, got %d", name, got)
		}
		if got := stored.Steps[name].Attempts; got != 1 {
			t.Errorf("%s: expected 1 attempt, got %d", name, got)
		}
	}
	assertInvariants(t, h, run.SessionID)
}

func TestRun_OptionalFailureSkipsDependents(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepImages: failWith("scraper quota exceeded"),
	})

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStep(t, run, steps.StepImages, domain.StepStatusFailed)
	expectStep(t, run, steps.StepClassifyImages, domain.StepStatusSkipped)
	if got := run.Steps[steps.StepClassifyImages].SkipReason; got != domain.SkipReasonDependencyFailed {
		t.Errorf("expected skip reason %s, got %s", domain.SkipReasonDependencyFailed, got)
	}
	completed := run.CompletedSteps()
	if slices.Contains(completed, steps.StepClassifyImages) {
		t.Error("classify_images must not be completed")
	}
	if len(completed) != 7 {
		t.Errorf("expected 7 completed steps, got %v", completed)
	}

	if len(run.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", run.Errors)
	}
	if run.Errors[0].Step != steps.StepImages || run.Errors[0].Message != "scraper quota exceeded" {
		t.Errorf("unexpected error entry: %+v", run.Errors[0])
	}

	if got := h.rec.count(steps.StepClassifyImages); got != 0 {
		t.Errorf("classify_images should never run, got %d calls", got)
	}
	assertInvariants(t, h, run.SessionID)
}

func TestRun_FailurePropagatesTransitively(t *testing.T) {
	rec := newRecorder()
	root := steps.Definition{Name: "root", Mandatory: true, Executor: rec.wrap(func(context.Context, *steps.RunContext) (*steps.Result, error) {
		return &steps.Result{PropertyID: "p"}, nil
	})}
	a := steps.Definition{Name: "a", DependsOn: []string{"root"}, Executor: rec.wrap(failWith("boom"))}
	b := steps.Definition{Name: "b", DependsOn: []string{"a"}, Executor: rec.wrap(succeed)}
	c := steps.Definition{Name: "c", DependsOn: []string{"b", "root"}, Executor: rec.wrap(succeed)}
	d := steps.Definition{Name: "d", DependsOn: []string{"root"}, Executor: rec.wrap(succeed)}

	reg, err := steps.NewRegistry(root, a, b, c, d)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	orch, err := New(Config{
		Registry: reg,
		Store:    repo.NewMemorySessionRepo(),
		Decider:  cache.NewDecisionService(cache.DecisionConfig{Store: cache.NewMemoryStore()}),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(orch.Stop)

	run, err := orch.Run(context.Background(), "https://chain.example", false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStep(t, run, "a", domain.StepStatusFailed)
	expectStep(t, run, "b", domain.StepStatusSkipped)
	expectStep(t, run, "c", domain.StepStatusSkipped)
	expectStep(t, run, "d", domain.StepStatusCompleted)
	if rec.count("b") != 0 || rec.count("c") != 0 {
		t.Errorf("skipped steps must not run: b=%d c=%d", rec.count("b"), rec.count("c"))
	}
}

func TestRun_MandatoryFailureFailsRun(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepPropertyInfo: failWith("site unreachable"),
	})

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusFailed)
	if run.PropertyID != "" {
		t.Errorf("expected no property, got %q", run.PropertyID)
	}
	if got := run.CompletedSteps(); len(got) != 0 {
		t.Errorf("expected no completed steps, got %v", got)
	}
	for _, name := range h.registry.Optional() {
		expectStep(t, run, name, domain.StepStatusSkipped)
		if got := run.Steps[name].SkipReason; got != domain.SkipReasonMandatoryFailed {
			t.Errorf("%s: expected skip reason %s, got %s", name, domain.SkipReasonMandatoryFailed, got)
		}
		if got := h.rec.count(name); got != 0 {
			t.Errorf("%s: expected no calls, got %d", name, got)
		}
	}
	if len(run.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", run.Errors)
	}
	if run.Errors[0].Step != steps.StepPropertyInfo {
		t.Errorf("expected error for %s, got %s", steps.StepPropertyInfo, run.Errors[0].Step)
	}

	if got := h.stored(t, run.SessionID).Record().PropertyID; got != nil {
		t.Errorf("expected no stored property, got %s", *got)
	}
	assertInvariants(t, h, run.SessionID)
}

func TestRun_MandatoryWithoutPropertyIDFails(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepPropertyInfo: func(context.Context, *steps.RunContext) (*steps.Result, error) {
			return &steps.Result{}, nil
		},
	})

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusFailed)
	expectStep(t, run, steps.StepPropertyInfo, domain.StepStatusFailed)
	if len(run.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", run.Errors)
	}
	if !strings.Contains(run.Errors[0].Message, "no property id") {
		t.Errorf("unexpected error message: %s", run.Errors[0].Message)
	}
	assertInvariants(t, h, run.SessionID)
}

func TestRun_PropertyIDOnRunSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newHarness(t, nil)
	h.run(t, false)

	hasProperty := func() bool {
		for _, span := range recorder.Ended() {
			if span.Name() != "onboarding.run" {
				continue
			}
			for _, kv := range span.Attributes() {
				if kv.Key == telemetry.PropertyIDKey && kv.Value.AsString() == "prop-1" {
					return true
				}
			}
		}
		return false
	}
	eventually(t, hasProperty, "run span has no property id")
}

// --- Cache decision ---

func TestRun_ForceRefreshIgnoresFreshCache(t *testing.T) {
	h := newHarness(t, nil)
	err := h.cache.Put(context.Background(), cache.Entry{
		Domain: "grand-hotel.example", ContentType: cache.ContentMarkdown, CachedAt: epoch.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	run := h.run(t, true)

	if run.CacheDecision == nil {
		t.Fatal("cache decision should be recorded")
	}
	if run.CacheDecision.UseCache {
		t.Error("force refresh must not use cache")
	}
	if !run.ForceRefresh {
		t.Error("ForceRefresh should be recorded")
	}
}

func TestRun_NoCacheEntry(t *testing.T) {
	h := newHarness(t, nil)

	run := h.run(t, false)

	if run.CacheDecision == nil {
		t.Fatal("cache decision should be recorded")
	}
	if run.CacheDecision.UseCache {
		t.Error("empty cache must not be used")
	}
}

func TestRun_CacheDecisionSharedByAllConsumers(t *testing.T) {
	h := newHarness(t, nil)
	err := h.cache.Put(context.Background(), cache.Entry{
		Domain: "grand-hotel.example", ContentType: cache.ContentImages, CachedAt: epoch.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	run := h.run(t, false)
	if run.CacheDecision == nil || !run.CacheDecision.UseCache {
		t.Fatalf("expected fresh cache to be used, got %+v", run.CacheDecision)
	}

	consumers := 0
	for _, rc := range h.rec.runContexts() {
		def, err := h.registry.Get(rc.Step)
		if err != nil {
			t.Fatalf("%s: %v", rc.Step, err)
		}
		if !def.ConsumesCache {
			if rc.CacheDecision != nil {
				t.Errorf("%s: non-consumer got a cache decision", rc.Step)
			}
			continue
		}
		consumers++
		if rc.CacheDecision == nil {
			t.Errorf("%s: consumer got no cache decision", rc.Step)
			continue
		}
		if rc.CacheDecision.UseCache != run.CacheDecision.UseCache {
			t.Errorf("%s: use_cache differs from run decision", rc.Step)
		}
		if !run.CacheDecision.ComputedAt.Equal(rc.CacheDecision.ComputedAt) {
			t.Errorf("%s: decision computed at %s, run has %s", rc.Step, rc.CacheDecision.ComputedAt, run.CacheDecision.ComputedAt)
		}
		if rc.PropertyID != "prop-1" {
			t.Errorf("%s: expected property prop-1, got %q", rc.Step, rc.PropertyID)
		}
	}
	if consumers != 5 {
		t.Errorf("expected 5 cache consumers, got %d", consumers)
	}
}

// --- Concurrency ---

func TestRun_RateLimitClassSerializesSteps(t *testing.T) {
	scraper := &peak{}
	llm := &peak{}
	h := newHarness(t, map[string]stepFunc{
		steps.StepImages:        scraper.wrap(20 * time.Millisecond),
		steps.StepReviews:       scraper.wrap(20 * time.Millisecond),
		steps.StepCompetitors:   scraper.wrap(20 * time.Millisecond),
		steps.StepBrandIdentity: llm.wrap(20 * time.Millisecond),
		steps.StepAmenities:     llm.wrap(20 * time.Millisecond),
		steps.StepFloorPlans:    llm.wrap(20 * time.Millisecond),
		steps.StepSpecialOffers: llm.wrap(20 * time.Millisecond),
	}, withConfig(func(c *Config) {
		c.MaxConcurrency = 8
		c.ClassLimits = map[string]int{steps.ClassScraper: 1, steps.ClassLLM: 2}
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	if got := scraper.value(); got != 1 {
		t.Errorf("expected scraper steps serialized, peak %d", got)
	}
	if got := llm.value(); got > 2 {
		t.Errorf("expected at most 2 llm steps at once, peak %d", got)
	}
}

func TestRun_GlobalPoolBoundsInFlightSteps(t *testing.T) {
	all := &peak{}
	overrides := make(map[string]stepFunc)
	for _, name := range steps.ReferenceNames[1:] {
		overrides[name] = all.wrap(15 * time.Millisecond)
	}
	h := newHarness(t, overrides, withConfig(func(c *Config) {
		c.MaxConcurrency = 2
		c.ClassLimits = map[string]int{steps.ClassScraper: 3, steps.ClassLLM: 5}
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	if got := all.value(); got > 2 {
		t.Errorf("expected at most 2 steps at once, peak %d", got)
	}
}

func TestRun_StepTimeoutFailsStep(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepAmenities: blockUntilDone(nil),
	}, withConfig(func(c *Config) {
		c.StepTimeout = 50 * time.Millisecond
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStep(t, run, steps.StepAmenities, domain.StepStatusFailed)
	if msg := run.Steps[steps.StepAmenities].Error; !strings.Contains(msg, "step timeout after 50ms") {
		t.Errorf("unexpected step error: %q", msg)
	}
	if got := run.CompletedSteps(); len(got) != 8 {
		t.Errorf("expected 8 completed steps, got %v", got)
	}
}

func TestRun_StepTimeoutAbandonsExecutorIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, map[string]stepFunc{
		steps.StepAmenities: func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
			<-release
			return succeed(ctx, rc)
		},
	}, withConfig(func(c *Config) {
		c.StepTimeout = 50 * time.Millisecond
		// Один слот в пуле: без его освобождения остальные шаги не запустятся.
		c.MaxConcurrency = 1
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStep(t, run, steps.StepAmenities, domain.StepStatusFailed)
	if msg := run.Steps[steps.StepAmenities].Error; !strings.Contains(msg, "step timeout after 50ms") {
		t.Errorf("unexpected step error: %q", msg)
	}
	if got := run.CompletedSteps(); len(got) != 8 {
		t.Errorf("expected 8 completed steps, got %v", got)
	}
	assertInvariants(t, h, run.SessionID)
}

// --- Persistence ---

// flakyStore портит запись финального статуса run'а.
type flakyStore struct {
	*repo.MemorySessionRepo

	mu sync.Mutex
	// failures — сколько записей финального статуса отклонить.
	failures int
	// conflicts — перед скольки записями финального статуса версию
	// в хранилище меняет другой писатель.
	conflicts int
	// attempts — сколько раз пытались записать финальный статус.
	attempts int
}

func (s *flakyStore) Update(ctx context.Context, run *domain.WorkflowRun) error {
	if !run.Status.IsTerminal() {
		return s.MemorySessionRepo.Update(ctx, run)
	}

	s.mu.Lock()
	s.attempts++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	conflict := !fail && s.conflicts > 0
	if conflict {
		s.conflicts--
	}
	s.mu.Unlock()

	if fail {
		return errors.New("connection reset by peer")
	}
	if conflict {
		stored, err := s.MemorySessionRepo.Get(ctx, run.SessionID)
		if err != nil {
			return err
		}
		if err := s.MemorySessionRepo.Update(ctx, stored); err != nil {
			return err
		}
	}
	return s.MemorySessionRepo.Update(ctx, run)
}

func (s *flakyStore) terminalAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func TestRun_FinalStatusWriteRetried(t *testing.T) {
	mem := repo.NewMemorySessionRepo()
	flaky := &flakyStore{MemorySessionRepo: mem, failures: 2}
	h := newHarnessWithStore(t, mem, nil, withConfig(func(c *Config) {
		c.Store = flaky
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStatus(t, h.stored(t, run.SessionID), domain.RunStatusCompleted)
	if got := flaky.terminalAttempts(); got != 3 {
		t.Errorf("expected 3 attempts to save the final status, got %d", got)
	}
	if h.orch.IsActive(run.SessionID) {
		t.Error("finished run should not stay active")
	}
	if got := len(h.pub.finished()); got != 1 {
		t.Errorf("expected 1 run.finished event, got %d", got)
	}
}

func TestRun_FinalStatusWriteReloadsVersionOnConflict(t *testing.T) {
	mem := repo.NewMemorySessionRepo()
	flaky := &flakyStore{MemorySessionRepo: mem, conflicts: 1}
	h := newHarnessWithStore(t, mem, nil, withConfig(func(c *Config) {
		c.Store = flaky
	}))

	run := h.run(t, false)

	expectStatus(t, run, domain.RunStatusCompleted)
	stored := h.stored(t, run.SessionID)
	expectStatus(t, stored, domain.RunStatusCompleted)
	if stored.Version != run.Version {
		t.Errorf("returned run at version %d, stored at %d", run.Version, stored.Version)
	}
}

func TestStop_UnsavedFinalStatusLeavesRunResumable(t *testing.T) {
	mem := repo.NewMemorySessionRepo()
	flaky := &flakyStore{MemorySessionRepo: mem, failures: 1 << 30}
	h := newHarnessWithStore(t, mem, nil, withConfig(func(c *Config) {
		c.Store = flaky
	}))

	type runResult struct {
		run *domain.WorkflowRun
		err error
	}
	results := make(chan runResult, 1)
	go func() {
		run, err := h.orch.Run(context.Background(), testURL, false)
		results <- runResult{run, err}
	}()

	eventually(t, func() bool { return flaky.terminalAttempts() > 0 }, "final status was never written")
	h.orch.Stop()

	res := <-results
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if res.run.Status.IsTerminal() {
		t.Errorf("run must not report %s when the store never saw it", res.run.Status)
	}
	stored := h.stored(t, res.run.SessionID)
	if stored.Status != res.run.Status {
		t.Errorf("returned status %s, stored %s", res.run.Status, stored.Status)
	}

	next := newHarnessWithStore(t, mem, nil)
	resumed, err := next.orch.ResumeInterrupted(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed run, got %d", resumed)
	}
	expectStatus(t, next.wait(t, res.run.SessionID), domain.RunStatusCompleted)
	if got := next.rec.count(steps.StepImages); got != 0 {
		t.Errorf("completed steps must not run again, images ran %d times", got)
	}
}

// --- Status ---

func TestSubmit_ReturnsStartedSnapshot(t *testing.T) {
	started := make(chan string, 16)
	h := newHarness(t, map[string]stepFunc{
		steps.StepPropertyInfo: blockUntilDone(started),
	})

	run, err := h.orch.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	expectStatus(t, run, domain.RunStatusStarted)
	if run.PropertyID != "" {
		t.Errorf("expected no property yet, got %q", run.PropertyID)
	}
	for _, name := range steps.ReferenceNames {
		expectStep(t, run, name, domain.StepStatusPending)
	}

	waitStarted(t, started)
	eventually(t, func() bool {
		return h.stored(t, run.SessionID).StepStatus(steps.StepPropertyInfo) == domain.StepStatusRunning
	}, "property_info never became running")

	status := h.stored(t, run.SessionID)
	expectStatus(t, status, domain.RunStatusInProgress)
	if cur := status.Record().CurrentStep; cur == nil || *cur != steps.StepPropertyInfo {
		t.Errorf("expected current step %s, got %v", steps.StepPropertyInfo, cur)
	}
	if !h.orch.IsActive(run.SessionID) {
		t.Error("run should be active")
	}

	if err := h.orch.Cancel(context.Background(), run.SessionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestSubmit_InvalidURL(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Submit(context.Background(), "", false)
	expectError(t, err, ErrInvalidURL)
}

func TestStatus_UnknownSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Status(context.Background(), uuid.New())
	expectError(t, err, ErrRunNotFound)
}

func TestMissingExtractions(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepImages: failWith("no gallery"),
	})
	h.run(t, false)

	missing, err := h.orch.MissingExtractions(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("missing extractions: %v", err)
	}
	if want := []string{steps.StepImages, steps.StepClassifyImages}; !slices.Equal(missing, want) {
		t.Errorf("expected %v, got %v", want, missing)
	}

	_, err = h.orch.MissingExtractions(context.Background(), "unknown")
	expectError(t, err, ErrPropertyNotFound)
}

// --- Retry ---

func TestRetryStep_FailedStepReadmitsDependents(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepImages: failFirst("timeout talking to scraper"),
	})
	first := h.run(t, false)
	if got := first.StepStatus(steps.StepImages); got != domain.StepStatusFailed {
		t.Fatalf("expected images failed on the first run, got %s", got)
	}
	decision := *first.CacheDecision

	if err := h.orch.RetryStep(context.Background(), first.SessionID, steps.StepImages); err != nil {
		t.Fatalf("retry: %v", err)
	}
	run := h.wait(t, first.SessionID)

	expectStatus(t, run, domain.RunStatusCompleted)
	expectStep(t, run, steps.StepImages, domain.StepStatusCompleted)
	expectStep(t, run, steps.StepClassifyImages, domain.StepStatusCompleted)
	if got := run.Steps[steps.StepImages].Attempts; got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if len(run.Errors) != 0 {
		t.Errorf("expected no errors, got %v", run.Errors)
	}
	if got := run.CompletedSteps(); len(got) != 9 {
		t.Errorf("expected 9 completed steps, got %v", got)
	}

	// Решение о кэше не пересчитывается.
	if !decision.ComputedAt.Equal(run.CacheDecision.ComputedAt) {
		t.Errorf("cache decision recomputed: %s -> %s", decision.ComputedAt, run.CacheDecision.ComputedAt)
	}

	// Остальные шаги не тронуты.
	for _, name := range steps.ReferenceNames {
		if name == steps.StepImages || name == steps.StepClassifyImages {
			continue
		}
		expectStep(t, run, name, first.StepStatus(name))
		if got := h.rec.count(name); got != 1 {
			t.Errorf("%s: expected 1 call, got %d", name, got)
		}
	}
	assertInvariants(t, h, first.SessionID)
}

func TestRetryStep_MandatoryStepRecoversRun(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepPropertyInfo: failFirst("crawler blocked"),
	})
	first := h.run(t, false)
	if first.Status != domain.RunStatusFailed {
		t.Fatalf("expected first run failed, got %s", first.Status)
	}

	if err := h.orch.RetryStep(context.Background(), first.SessionID, steps.StepPropertyInfo); err != nil {
		t.Fatalf("retry: %v", err)
	}
	run := h.wait(t, first.SessionID)

	expectStatus(t, run, domain.RunStatusCompleted)
	if run.PropertyID != "prop-1" {
		t.Errorf("expected property prop-1, got %q", run.PropertyID)
	}
	if got := run.CompletedSteps(); len(got) != 9 {
		t.Errorf("expected 9 completed steps, got %v", got)
	}
	assertInvariants(t, h, first.SessionID)
}

func TestRetryStep_RejectsCompletedStep(t *testing.T) {
	h := newHarness(t, nil)
	run := h.run(t, false)

	err := h.orch.RetryStep(context.Background(), run.SessionID, steps.StepImages)
	expectError(t, err, ErrInvalidState)
	expectStatus(t, h.stored(t, run.SessionID), domain.RunStatusCompleted)
}

func TestRetryStep_RejectsRunningStep(t *testing.T) {
	started := make(chan string, 16)
	h := newHarness(t, map[string]stepFunc{
		steps.StepAmenities: blockUntilDone(started),
	})

	run, err := h.orch.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if name := waitStarted(t, started); name != steps.StepAmenities {
		t.Fatalf("expected amenities to start, got %s", name)
	}

	eventually(t, func() bool {
		return h.stored(t, run.SessionID).StepStatus(steps.StepAmenities) == domain.StepStatusRunning
	}, "amenities never became running")

	err = h.orch.RetryStep(context.Background(), run.SessionID, steps.StepAmenities)
	expectError(t, err, ErrInvalidState)

	if err := h.orch.Cancel(context.Background(), run.SessionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestRetryStep_UnknownStepAndSession(t *testing.T) {
	h := newHarness(t, nil)
	run := h.run(t, false)

	err := h.orch.RetryStep(context.Background(), run.SessionID, "weather")
	expectError(t, err, ErrInvalidState)

	err = h.orch.RetryStep(context.Background(), uuid.New(), steps.StepImages)
	expectError(t, err, ErrRunNotFound)
}

func TestRetryStep_DependencyNotReady(t *testing.T) {
	h := newHarness(t, nil)
	run := domain.NewWorkflowRun(testURL, "grand-hotel.example", false, h.registry.Names(), epoch)
	run.MarkStepFailed(steps.StepPropertyInfo, "crawler blocked", epoch)
	run.MarkStepFailed(steps.StepImages, "scraper down", epoch)
	run.Finish(domain.RunStatusFailed, epoch)
	if err := h.store.Create(context.Background(), run); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := h.orch.RetryStep(context.Background(), run.SessionID, steps.StepImages)
	expectError(t, err, ErrDependencyNotReady)
	expectStep(t, h.stored(t, run.SessionID), steps.StepImages, domain.StepStatusFailed)
}

// --- Cancellation and shutdown ---

func TestCancel_ActiveRun(t *testing.T) {
	started := make(chan string, 16)
	overrides := make(map[string]stepFunc)
	for _, name := range steps.ReferenceNames[1:] {
		overrides[name] = blockUntilDone(started)
	}
	h := newHarness(t, overrides)

	run, err := h.orch.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitStarted(t, started)

	if err := h.orch.Cancel(context.Background(), run.SessionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := h.stored(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCancelled)
	expectStep(t, final, steps.StepPropertyInfo, domain.StepStatusCompleted)
	if final.PropertyID != "prop-1" {
		t.Errorf("expected property prop-1, got %q", final.PropertyID)
	}
	for _, name := range h.registry.Optional() {
		expectStep(t, final, name, domain.StepStatusSkipped)
		if got := final.Steps[name].SkipReason; got != domain.SkipReasonCancelled {
			t.Errorf("%s: expected skip reason %s, got %s", name, domain.SkipReasonCancelled, got)
		}
	}
	if h.orch.IsActive(run.SessionID) {
		t.Error("cancelled run should not stay active")
	}

	finished := h.pub.finished()
	if len(finished) != 1 {
		t.Fatalf("expected 1 run.finished event, got %d", len(finished))
	}
	if finished[0].Status != string(domain.RunStatusCancelled) {
		t.Errorf("expected run.finished status cancelled, got %s", finished[0].Status)
	}

	err = h.orch.RetryStep(context.Background(), run.SessionID, steps.StepImages)
	expectError(t, err, ErrInvalidState)
	assertInvariants(t, h, run.SessionID)
}

func TestCancel_StepIgnoringCancellationKeepsResult(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	h := newHarness(t, map[string]stepFunc{
		steps.StepImages: func(ctx context.Context, rc *steps.RunContext) (*steps.Result, error) {
			started <- rc.Step
			<-release
			return succeed(ctx, rc)
		},
	})

	run, err := h.orch.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitStarted(t, started)

	cancelled := make(chan error, 1)
	go func() {
		cancelled <- h.orch.Cancel(context.Background(), run.SessionID)
	}()

	// classify_images ждёт images и пропускается при разборе отмены.
	eventually(t, func() bool {
		return h.stored(t, run.SessionID).StepStatus(steps.StepClassifyImages) == domain.StepStatusSkipped
	}, "cancellation was never applied")
	close(release)

	if err := <-cancelled; err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := h.stored(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCancelled)
	expectStep(t, final, steps.StepImages, domain.StepStatusCompleted)
	expectStep(t, final, steps.StepClassifyImages, domain.StepStatusSkipped)
	if got := final.Steps[steps.StepClassifyImages].SkipReason; got != domain.SkipReasonCancelled {
		t.Errorf("expected skip reason %s, got %s", domain.SkipReasonCancelled, got)
	}
	if got := h.rec.count(steps.StepClassifyImages); got != 0 {
		t.Errorf("classify_images must not run after cancel, got %d calls", got)
	}
	assertInvariants(t, h, run.SessionID)
}

func TestCoordinate_CancelBeforeDispatchStartsNothing(t *testing.T) {
	h := newHarness(t, nil)
	run := domain.NewWorkflowRun(testURL, "grand-hotel.example", false, h.registry.Names(), epoch)
	if err := h.store.Create(context.Background(), run); err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrRunCancelled)
	handle := &runHandle{
		sessionID: run.SessionID,
		cancel:    cancel,
		retries:   make(chan retryRequest),
		done:      make(chan struct{}),
	}
	if err := h.orch.addActiveRun(handle); err != nil {
		t.Fatalf("add active run: %v", err)
	}

	h.orch.coordinate(ctx, handle, NewRunState(run, h.registry))

	final := h.stored(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCancelled)
	for _, name := range steps.ReferenceNames {
		expectStep(t, final, name, domain.StepStatusSkipped)
		if got := h.rec.count(name); got != 0 {
			t.Errorf("%s: expected no calls, got %d", name, got)
		}
	}
	for i, snap := range h.store.History(run.SessionID) {
		for name, st := range snap.Steps {
			if st.Status == domain.StepStatusReady || st.Status == domain.StepStatusRunning {
				t.Errorf("version %d: %s was %s after cancellation", i, name, st.Status)
			}
			if st.Attempts != 0 {
				t.Errorf("version %d: %s has %d attempts", i, name, st.Attempts)
			}
		}
	}
}

func TestCancel_TerminalRun(t *testing.T) {
	h := newHarness(t, nil)
	run := h.run(t, false)

	err := h.orch.Cancel(context.Background(), run.SessionID)
	expectError(t, err, ErrInvalidState)

	err = h.orch.Cancel(context.Background(), uuid.New())
	expectError(t, err, ErrRunNotFound)
}

func TestCancel_InactiveRun(t *testing.T) {
	h := newHarness(t, nil)
	run := domain.NewWorkflowRun(testURL, "grand-hotel.example", false, h.registry.Names(), epoch)
	run.MarkStepRunning(steps.StepPropertyInfo, epoch)
	run.MarkInProgress()
	if err := h.store.Create(context.Background(), run); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.orch.Cancel(context.Background(), run.SessionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := h.stored(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCancelled)
	for _, name := range steps.ReferenceNames {
		expectStep(t, final, name, domain.StepStatusSkipped)
	}
}

func TestStop_SuspendsAndResumeCompletesRun(t *testing.T) {
	store := repo.NewMemorySessionRepo()
	started := make(chan string, 16)
	h := newHarnessWithStore(t, store, map[string]stepFunc{
		steps.StepAmenities: blockUntilDone(started),
	})

	run, err := h.orch.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if name := waitStarted(t, started); name != steps.StepAmenities {
		t.Fatalf("expected amenities to start, got %s", name)
	}

	h.orch.Stop()

	suspended := h.stored(t, run.SessionID)
	if suspended.Status.IsTerminal() {
		t.Errorf("suspended run must not be terminal, got %s", suspended.Status)
	}
	expectStep(t, suspended, steps.StepAmenities, domain.StepStatusPending)
	expectStep(t, suspended, steps.StepPropertyInfo, domain.StepStatusCompleted)

	_, err = h.orch.Submit(context.Background(), testURL, false)
	expectError(t, err, ErrOrchestratorStopped)

	next := newHarnessWithStore(t, store, nil)
	resumed, err := next.orch.ResumeInterrupted(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed run, got %d", resumed)
	}

	final := next.wait(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCompleted)
	if got := final.CompletedSteps(); len(got) != 9 {
		t.Errorf("expected 9 completed steps, got %v", got)
	}
	if !suspended.CacheDecision.ComputedAt.Equal(final.CacheDecision.ComputedAt) {
		t.Errorf("cache decision recomputed on resume")
	}
	if got := next.rec.count(steps.StepPropertyInfo); got != 0 {
		t.Errorf("property_info must not run again, got %d calls", got)
	}
	if got := next.rec.count(steps.StepAmenities); got != 1 {
		t.Errorf("expected amenities to run once after resume, got %d", got)
	}
}

func TestResumeInterrupted_ResetsRunningSteps(t *testing.T) {
	h := newHarness(t, nil)
	decision := domain.CacheDecision{UseCache: true, MaxAgeSeconds: 86400, ComputedAt: epoch}

	run := domain.NewWorkflowRun(testURL, "grand-hotel.example", false, h.registry.Names(), epoch)
	run.CacheDecision = &decision
	run.MarkStepRunning(steps.StepPropertyInfo, epoch)
	run.MarkStepCompleted(steps.StepPropertyInfo, epoch)
	run.PropertyID = "prop-7"
	run.MarkStepReady(steps.StepImages)
	run.MarkStepRunning(steps.StepImages, epoch)
	run.MarkInProgress()
	if err := h.store.Create(context.Background(), run); err != nil {
		t.Fatalf("create: %v", err)
	}

	resumed, err := h.orch.ResumeInterrupted(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed run, got %d", resumed)
	}

	final := h.wait(t, run.SessionID)
	expectStatus(t, final, domain.RunStatusCompleted)
	if final.PropertyID != "prop-7" {
		t.Errorf("expected property prop-7, got %q", final.PropertyID)
	}
	if got := final.Steps[steps.StepImages].Attempts; got != 2 {
		t.Errorf("expected 2 attempts for images, got %d", got)
	}
	if got := h.rec.count(steps.StepPropertyInfo); got != 0 {
		t.Errorf("property_info must not run again, got %d calls", got)
	}

	for _, rc := range h.rec.runContexts() {
		if rc.CacheDecision == nil {
			continue
		}
		if !rc.CacheDecision.UseCache || !rc.CacheDecision.ComputedAt.Equal(epoch) {
			t.Errorf("%s: expected the stored cache decision, got %+v", rc.Step, rc.CacheDecision)
		}
	}
}

// --- Events ---

func TestRun_PublishesEvents(t *testing.T) {
	h := newHarness(t, map[string]stepFunc{
		steps.StepReviews: failWith("no reviews found"),
	})

	run := h.run(t, false)

	finished := h.pub.finished()
	if len(finished) != 1 {
		t.Fatalf("expected 1 run.finished event, got %d", len(finished))
	}
	if finished[0].SessionID != run.SessionID {
		t.Errorf("expected session %s, got %s", run.SessionID, finished[0].SessionID)
	}
	if finished[0].Status != "completed" {
		t.Errorf("expected status completed, got %s", finished[0].Status)
	}
	if !slices.Equal(finished[0].FailedSteps, []string{steps.StepReviews}) {
		t.Errorf("expected failed [reviews], got %v", finished[0].FailedSteps)
	}
	if len(finished[0].CompletedSteps) != 8 {
		t.Errorf("expected 8 completed steps, got %v", finished[0].CompletedSteps)
	}

	if got := h.pub.stepStatuses(steps.StepImages); !slices.Equal(got, []string{"ready", "running", "completed"}) {
		t.Errorf("unexpected images updates: %v", got)
	}
	if got := h.pub.stepStatuses(steps.StepReviews); !slices.Equal(got, []string{"ready", "running", "failed"}) {
		t.Errorf("unexpected reviews updates: %v", got)
	}
}

func TestHandleSubmit(t *testing.T) {
	h := newHarness(t, nil)

	msg, err := mq.NewMessage(mq.MessageTypeSubmit, mq.SubmitPayload{URL: testURL, ForceReonboard: true})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := h.orch.handleSubmit(context.Background(), msg); err != nil {
		t.Fatalf("handle submit: %v", err)
	}

	eventually(t, func() bool {
		return len(h.pub.finished()) == 1
	}, "submitted run never finished")

	bad, err := mq.NewMessage(mq.MessageTypeSubmit, mq.SubmitPayload{URL: ""})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	err = h.orch.handleSubmit(context.Background(), bad)
	expectError(t, err, mq.ErrPoisonMessage)
}
