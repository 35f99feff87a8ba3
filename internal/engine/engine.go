// Package engine implements the multi-tenant pipeline orchestration core:
// definition management, the run state machine, and the scheduler/executor
// that drives runs through their steps.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/registry"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/repository"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures the executor.
type Options struct {
	// Workers is the size of the worker pool; each worker drives one run at
	// a time.
	Workers int
	// QueueSize bounds the number of pending runs waiting for a worker.
	// Triggers beyond this bound fail with ErrEngineUnavailable.
	QueueSize int
	// StepTimeout bounds a single module invocation. A timed-out step is a
	// failed step with a timeout error detail.
	StepTimeout time.Duration
	// MaxStepRetries bounds retries of retryable module errors. 0 disables
	// retries.
	MaxStepRetries int
	// RetryDelay is the pause between retry attempts.
	RetryDelay time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.StepTimeout <= 0 {
		out.StepTimeout = 30 * time.Second
	}
	return out
}

type job struct {
	tenantID string
	runID    string
}

// Engine is the orchestration engine. Every public operation takes the
// caller's tenant id as its first authority check; lookups owned by another
// tenant surface as repository.ErrNotFound.
type Engine struct {
	store    repository.Store
	registry *registry.Registry
	sink     AuditSink
	logger   Logger
	opts     Options
	metrics  *engineMetrics

	queue chan job
	sem   chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	cancelled map[string]bool
	stopped   bool
}

// New creates an Engine. Call Start before triggering runs.
func New(store repository.Store, reg *registry.Registry, sink AuditSink, logger Logger, opts Options) (*Engine, error) {
	if sink == nil {
		sink = NopSink{}
	}
	e := &Engine{
		store:     store,
		registry:  reg,
		sink:      sink,
		logger:    logger,
		opts:      opts.withDefaults(),
		cancelled: make(map[string]bool),
	}
	e.queue = make(chan job, e.opts.QueueSize)
	e.sem = make(chan struct{}, e.opts.QueueSize)

	m, err := newEngineMetrics(func() int64 { return int64(len(e.queue)) })
	if err != nil {
		return nil, fmt.Errorf("failed to init engine metrics: %w", err)
	}
	e.metrics = m
	return e, nil
}

// Registry returns the engine's module registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.logger.Info("executor started: workers=%d queue=%d step_timeout=%s",
		e.opts.Workers, e.opts.QueueSize, e.opts.StepTimeout)
}

// Stop closes the queue and waits for in-flight runs to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateDefinition validates and stores a new pipeline definition for the
// tenant. Steps must be non-empty with non-empty module ids; module
// existence is checked at trigger time, not here, since modules may be
// registered later.
func (e *Engine) CreateDefinition(ctx context.Context, tenantID, name string, steps []models.PipelineStep) (*models.PipelineDefinition, error) {
	if name == "" {
		return nil, fmt.Errorf("definition name is required: %w", ErrInvalidDefinition)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("definition needs at least one step: %w", ErrInvalidDefinition)
	}
	for i, s := range steps {
		if s.ModuleID == "" {
			return nil, fmt.Errorf("step %d has no module id: %w", i, ErrInvalidDefinition)
		}
	}

	def := &models.PipelineDefinition{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// GetDefinition returns one of the tenant's definitions.
func (e *Engine) GetDefinition(ctx context.Context, tenantID, id string) (*models.PipelineDefinition, error) {
	return e.store.GetDefinition(ctx, tenantID, id)
}

// ListDefinitions returns the tenant's definitions in insertion order.
func (e *Engine) ListDefinitions(ctx context.Context, tenantID string) ([]*models.PipelineDefinition, error) {
	return e.store.ListDefinitions(ctx, tenantID)
}

// Trigger creates a pending run for one of the tenant's definitions and
// schedules it for execution. All referenced modules must be resolvable now;
// the call returns the run id immediately and the caller polls GetRun.
func (e *Engine) Trigger(ctx context.Context, tenantID, definitionID string, policy models.FailurePolicy) (string, error) {
	def, err := e.store.GetDefinition(ctx, tenantID, definitionID)
	if err != nil {
		return "", err
	}

	if policy == "" {
		policy = models.PolicyAbort
	}
	if !policy.Valid() {
		return "", fmt.Errorf("unknown failure policy %q: %w", policy, ErrInvalidDefinition)
	}

	for i, step := range def.Steps {
		if _, err := e.registry.Resolve(step.ModuleID); err != nil {
			return "", fmt.Errorf("step %d: %w", i, err)
		}
	}

	run := &models.Run{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		DefinitionID: def.ID,
		Status:       models.RunStatusPending,
		Policy:       policy,
		StartedAt:    time.Now().UTC(),
	}

	// Reserve queue capacity before persisting so the run is always visible
	// to the worker by the time its job is dequeued.
	select {
	case e.sem <- struct{}{}:
	default:
		return "", fmt.Errorf("pending queue is full: %w", ErrEngineUnavailable)
	}

	if err := e.store.CreateRun(ctx, run); err != nil {
		<-e.sem
		return "", fmt.Errorf("failed to persist run: %w", err)
	}

	// The run exists from this point on; emitting before the enqueue keeps
	// the created event ahead of anything the worker emits.
	e.emit(AuditEvent{
		Type:         EventRunCreated,
		TenantID:     tenantID,
		RunID:        run.ID,
		DefinitionID: def.ID,
		Status:       string(run.Status),
	})

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		<-e.sem
		// Do not leave the persisted run stuck in pending.
		if ferr := finalizeRun(run, models.RunStatusCancelled, time.Now().UTC()); ferr == nil {
			if uerr := e.store.UpdateRun(ctx, run); uerr != nil {
				e.logger.Error("failed to cancel run %s after shutdown: %v", run.ID, uerr)
			} else {
				e.emit(AuditEvent{
					Type:         EventRunFinalized,
					TenantID:     tenantID,
					RunID:        run.ID,
					DefinitionID: def.ID,
					Status:       string(run.Status),
				})
			}
		}
		return "", fmt.Errorf("executor is stopped: %w", ErrEngineUnavailable)
	}
	e.queue <- job{tenantID: tenantID, runID: run.ID}
	e.mu.Unlock()

	e.metrics.runsStarted.Add(ctx, 1)
	return run.ID, nil
}

// GetRun returns one of the tenant's runs.
func (e *Engine) GetRun(ctx context.Context, tenantID, runID string) (*models.Run, error) {
	return e.store.GetRun(ctx, tenantID, runID)
}

// ListRuns returns the tenant's runs in creation order.
func (e *Engine) ListRuns(ctx context.Context, tenantID string) ([]*models.Run, error) {
	return e.store.ListRuns(ctx, tenantID)
}

// Cancel requests cancellation of a run. Cancellation is cooperative: it
// takes effect at the next step boundary, and an in-flight module invocation
// is allowed to finish first.
func (e *Engine) Cancel(ctx context.Context, tenantID, runID string) error {
	run, err := e.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("cancel run %q: %w", runID, ErrRunAlreadyTerminal)
	}

	e.mu.Lock()
	e.cancelled[runID] = true
	e.mu.Unlock()

	// The worker may finalize between the status check and the flag write,
	// in which case its cleanup has already run. Re-check so a terminal run
	// never acks a cancel or leaks its map entry.
	run, err = e.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		e.clearCancel(runID)
		return err
	}
	if run.Status.Terminal() {
		e.clearCancel(runID)
		return fmt.Errorf("cancel run %q: %w", runID, ErrRunAlreadyTerminal)
	}
	return nil
}

// RegisterModule registers a module capability and persists its catalog row.
func (e *Engine) RegisterModule(ctx context.Context, info models.ModuleInfo, capability registry.Capability) error {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	if err := e.registry.Register(info, capability); err != nil {
		return err
	}
	if err := e.store.CreateModule(ctx, &info); err != nil {
		return fmt.Errorf("failed to persist module %q: %w", info.ID, err)
	}
	return nil
}

// ListModules returns the registered modules.
func (e *Engine) ListModules(ctx context.Context) []models.ModuleInfo {
	return e.registry.List()
}

func (e *Engine) cancelRequested(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[runID]
}

func (e *Engine) clearCancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, runID)
}

func (e *Engine) emit(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.sink.Emit(event)
}
