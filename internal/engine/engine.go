package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/executor"
	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
)

const (
	// DefaultPriority is assigned when a request leaves priority unset.
	// Lower values are dispatched first.
	DefaultPriority = 5

	// DefaultMaxRetries is assigned when a request leaves maxRetries unset
	DefaultMaxRetries = 3
)

// Options defines configuration for the engine
type Options struct {
	// SchedulerTick is the dispatch loop interval
	SchedulerTick time.Duration

	// ResolverInterval is the dependency polling interval
	ResolverInterval time.Duration

	// FailDependents propagates terminal dependency failure to dependents
	FailDependents bool

	// Backoff is the retry backoff strategy; nil selects exponential
	// backoff with a 30s base, 15m cap and multiplier 2
	Backoff RetryStrategy

	// Recovery configures the stall scan and retention purge
	Recovery RecoveryConfig

	// NotifyBuffer is the notification dispatcher queue depth
	NotifyBuffer int
}

func (o *Options) applyDefaults() {
	if o.SchedulerTick <= 0 {
		o.SchedulerTick = time.Second
	}
	if o.ResolverInterval <= 0 {
		o.ResolverInterval = 30 * time.Second
	}
	if o.Backoff == nil {
		o.Backoff = &ExponentialBackoff{
			InitialDelay: 30 * time.Second,
			MaxDelay:     15 * time.Minute,
			Multiplier:   2,
		}
	}
	if o.Recovery.ScanInterval <= 0 {
		o.Recovery.ScanInterval = 5 * time.Minute
	}
	if o.Recovery.StallAfter <= 0 {
		o.Recovery.StallAfter = 30 * time.Minute
	}
	if o.Recovery.Retention <= 0 {
		o.Recovery.Retention = 30 * 24 * time.Hour
	}
}

// CreateRequest describes a promise to create
type CreateRequest struct {
	// ID is optional; a UUID is assigned when empty. Caller-supplied IDs
	// may be referenced as dependencies before they exist.
	ID string

	Description  string
	TaskType     string
	Dependencies []string

	// Priority defaults to DefaultPriority when zero; lower runs first
	Priority int

	// MaxRetries defaults to DefaultMaxRetries when zero
	MaxRetries int

	Metadata  map[string]string
	OriginRef string
}

// Engine owns the promise lifecycle: it persists created promises, resolves
// dependencies, dispatches ready work to the pool, retries failures and
// reconciles state after restarts.
type Engine struct {
	logger     *zap.Logger
	store      store.PromiseStore
	pool       *executor.Pool
	dispatcher *notify.Dispatcher
	resolver   *DependencyResolver
	retry      *RetryManager
	scheduler  *DispatchScheduler
	recovery   *RecoveryManager
}

// New wires the engine components around the given store, pool and sink
func New(opts Options, promises store.PromiseStore, pool *executor.Pool, sink notify.Sink, logger *zap.Logger) *Engine {
	opts.applyDefaults()

	dispatcher := notify.NewDispatcher(sink, opts.NotifyBuffer, logger)
	resolver := NewDependencyResolver(promises, dispatcher, opts.ResolverInterval, opts.FailDependents, logger)
	retry := NewRetryManager(promises, opts.Backoff, dispatcher, resolver, logger)
	scheduler := NewDispatchScheduler(promises, pool, opts.SchedulerTick, logger)
	recovery := NewRecoveryManager(promises, resolver, dispatcher, opts.Recovery, logger)

	pool.SetOutcomeHandler(retry)

	return &Engine{
		logger:     logger.Named("engine"),
		store:      promises,
		pool:       pool,
		dispatcher: dispatcher,
		resolver:   resolver,
		retry:      retry,
		scheduler:  scheduler,
		recovery:   recovery,
	}
}

// Start starts all engine loops. The recovery pass runs before the first
// scheduling tick so stalled promises from a prior run are re-queued first.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := e.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}
	if err := e.recovery.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recovery manager: %w", err)
	}
	if err := e.resolver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start resolver: %w", err)
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	e.logger.Info("Promise engine started")
	return nil
}

// Stop stops the engine loops, waiting for in-flight executions
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.resolver.Stop()
	e.recovery.Stop()
	e.pool.Stop()
	e.dispatcher.Stop()
	e.logger.Info("Promise engine stopped")
}

// CreatePromise validates and persists a new promise. Promises with
// dependencies start out waiting; everything else starts pending.
func (e *Engine) CreatePromise(ctx context.Context, req CreateRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	priority := req.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	status := model.PromiseStatusPending
	if len(req.Dependencies) > 0 {
		status = model.PromiseStatusWaiting
	}

	promise := &model.Promise{
		ID:           id,
		Description:  req.Description,
		TaskType:     req.TaskType,
		Status:       status,
		Priority:     priority,
		Dependencies: req.Dependencies,
		MaxRetries:   maxRetries,
		Metadata:     req.Metadata,
		OriginRef:    req.OriginRef,
		CreatedAt:    time.Now(),
	}

	if err := e.store.Create(ctx, promise); err != nil {
		return "", err
	}

	e.logger.Info("Promise created",
		zap.String("promise_id", id),
		zap.String("task_type", req.TaskType),
		zap.String("status", string(status)),
		zap.Int("priority", priority),
		zap.Strings("dependencies", req.Dependencies))

	// A promise created waiting may already have all dependencies
	// completed; check right away instead of waiting out a poll cycle.
	// The check is detached from the request context so a producer that
	// cancels right after Create does not defer promotion to the next poll.
	if status == model.PromiseStatusWaiting {
		go e.resolver.resolve(context.WithoutCancel(ctx), id)
	}

	return id, nil
}

// GetPromise retrieves a promise by ID
func (e *Engine) GetPromise(ctx context.Context, id string) (*model.Promise, error) {
	return e.store.Get(ctx, id)
}

// ListPromises retrieves promises, optionally filtered by status
func (e *Engine) ListPromises(ctx context.Context, statuses ...model.PromiseStatus) ([]*model.Promise, error) {
	return e.store.ListByStatus(ctx, statuses...)
}

// ListAttempts retrieves the execution history of a promise
func (e *Engine) ListAttempts(ctx context.Context, id string) ([]*model.ExecutionAttempt, error) {
	return e.store.ListAttempts(ctx, id)
}

// CancelPromise cancels a waiting or pending promise. A promise that is
// already running or terminal returns false with ErrNotCancellable; a
// running execution must finish or time out first.
func (e *Engine) CancelPromise(ctx context.Context, id string) (bool, error) {
	promise, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}

	cancelled, err := e.store.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, fmt.Errorf("%w: promise %s is %s", ErrNotCancellable, id, promise.Status)
	}

	e.logger.Info("Promise cancelled", zap.String("promise_id", id))
	e.resolver.NotifyTerminal(id)
	return true, nil
}

// Pool returns the worker pool for executor registration
func (e *Engine) Pool() *executor.Pool {
	return e.pool
}

func validate(req CreateRequest) error {
	if req.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if req.TaskType == "" {
		return fmt.Errorf("%w: task type is required", ErrValidation)
	}
	if req.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", ErrValidation)
	}
	if req.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrValidation)
	}
	seen := make(map[string]bool, len(req.Dependencies))
	for _, dep := range req.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: empty dependency id", ErrValidation)
		}
		if dep == req.ID {
			return fmt.Errorf("%w: promise cannot depend on itself", ErrValidation)
		}
		if seen[dep] {
			return fmt.Errorf("%w: duplicate dependency %s", ErrValidation, dep)
		}
		seen[dep] = true
	}
	return nil
}
