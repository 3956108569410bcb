package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/store"
)

// Executor performs the work for one task type. Implementations must
// tolerate being invoked more than once for the same promise: if a prior
// attempt's outcome was never durably recorded (crash, stall recovery), the
// engine will run the promise again.
type Executor interface {
	Execute(ctx context.Context, promise *model.Promise) (*model.PromiseResult, error)
}

// OutcomeHandler receives execution outcomes from the pool. Failure errors
// wrap ErrUnknownTaskType and ErrExecutionTimeout so handlers can match on
// the failure class with errors.Is.
type OutcomeHandler interface {
	HandleSuccess(ctx context.Context, promise *model.Promise, summary string)
	HandleFailure(ctx context.Context, promise *model.Promise, execErr error, retryable bool)
}

// PoolConfig defines configuration for the worker pool
type PoolConfig struct {
	// Size is the number of concurrent execution slots
	Size int

	// DefaultTimeout bounds executions without a per-type override
	DefaultTimeout time.Duration

	// TaskTimeouts overrides the timeout per task type
	TaskTimeouts map[string]time.Duration
}

// Pool is a bounded set of execution slots. It resolves the registered
// executor for a promise's task type, runs it under a hard timeout, records
// an execution attempt, and forwards the outcome to the handler.
type Pool struct {
	logger    *zap.Logger
	config    PoolConfig
	store     store.PromiseStore
	outcome   OutcomeHandler
	executors map[string]Executor
	mu        sync.RWMutex
	slots     chan struct{}
	running   sync.Map
	wg        sync.WaitGroup
	stats     *StatsCollector
}

// NewPool creates a new worker pool
func NewPool(config PoolConfig, promises store.PromiseStore, logger *zap.Logger) *Pool {
	if config.Size <= 0 {
		config.Size = 4
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = time.Hour
	}

	poolLogger := logger.Named("worker-pool")
	return &Pool{
		logger:    poolLogger,
		config:    config,
		store:     promises,
		executors: make(map[string]Executor),
		slots:     make(chan struct{}, config.Size),
		stats:     NewStatsCollector(poolLogger),
	}
}

// Register registers an executor for a task type
func (p *Pool) Register(taskType string, exec Executor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executors[taskType] = exec
}

// SetOutcomeHandler wires the handler that receives execution outcomes
func (p *Pool) SetOutcomeHandler(handler OutcomeHandler) {
	p.outcome = handler
}

// Start starts the pool's stats monitor
func (p *Pool) Start(ctx context.Context) error {
	p.logger.Info("Starting worker pool",
		zap.Int("slots", p.config.Size),
		zap.Duration("default_timeout", p.config.DefaultTimeout))
	return p.stats.Start(ctx)
}

// Stop waits for in-flight executions to finish
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool")
	p.stats.Stop()
	p.wg.Wait()
}

// FreeSlots returns the number of currently free execution slots
func (p *Pool) FreeSlots() int {
	return cap(p.slots) - len(p.slots)
}

// RunningPromises returns the promises currently executing
func (p *Pool) RunningPromises() []*model.Promise {
	var promises []*model.Promise
	p.running.Range(func(key, value interface{}) bool {
		if promise, ok := value.(*model.Promise); ok {
			promises = append(promises, promise)
		}
		return true
	})
	return promises
}

// Stats returns the current system stats sample
func (p *Pool) Stats() SystemStats {
	return p.stats.Current()
}

// Execute runs the promise on a pool slot. The caller must have claimed the
// promise (status in_progress) before dispatching it.
func (p *Pool) Execute(ctx context.Context, promise *model.Promise) {
	p.slots <- struct{}{}
	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		p.run(ctx, promise)
	}()
}

func (p *Pool) run(ctx context.Context, promise *model.Promise) {
	p.running.Store(promise.ID, promise)
	defer p.running.Delete(promise.ID)

	attemptNumber := promise.RetryCount + 1
	startedAt := time.Now()

	p.mu.RLock()
	exec, ok := p.executors[promise.TaskType]
	p.mu.RUnlock()

	if !ok {
		execErr := fmt.Errorf("%w: %s", ErrUnknownTaskType, promise.TaskType)
		p.recordAttempt(ctx, promise, attemptNumber, startedAt, model.PromiseStatusFailed, "", execErr.Error())
		p.outcome.HandleFailure(ctx, promise, execErr, false)
		return
	}

	timeout := p.config.DefaultTimeout
	if override, ok := p.config.TaskTimeouts[promise.TaskType]; ok && override > 0 {
		timeout = override
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.logger.Info("Executing promise",
		zap.String("promise_id", promise.ID),
		zap.String("task_type", promise.TaskType),
		zap.Int("attempt", attemptNumber),
		zap.Duration("timeout", timeout))

	type execResult struct {
		result *model.PromiseResult
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- execResult{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		result, err := exec.Execute(execCtx, promise)
		resultCh <- execResult{result: result, err: err}
	}()

	select {
	case res := <-resultCh:
		p.finish(ctx, promise, attemptNumber, startedAt, res.result, res.err)
	case <-execCtx.Done():
		// The executor was asked to stop via its context; whether it honors
		// that is up to the implementation. Any late result is ignored.
		if execCtx.Err() == context.DeadlineExceeded {
			execErr := fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
			p.recordAttempt(ctx, promise, attemptNumber, startedAt, model.PromiseStatusFailed, "", execErr.Error())
			p.outcome.HandleFailure(ctx, promise, execErr, true)
			return
		}

		// Parent context cancelled: a shutdown, not an execution failure.
		// The promise row stays in_progress; stall recovery re-queues it on
		// the next start without spending a retry here.
		p.logger.Warn("Execution interrupted by shutdown",
			zap.String("promise_id", promise.ID),
			zap.Int("attempt", attemptNumber))
	}
}

// finish records the attempt and forwards the outcome
func (p *Pool) finish(ctx context.Context, promise *model.Promise, attemptNumber int, startedAt time.Time, result *model.PromiseResult, execErr error) {
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			// Executor bailed out because of a shutdown; leave the row
			// in_progress for stall recovery.
			p.logger.Warn("Execution interrupted by shutdown",
				zap.String("promise_id", promise.ID),
				zap.Int("attempt", attemptNumber))
			return
		}
		p.recordAttempt(ctx, promise, attemptNumber, startedAt, model.PromiseStatusFailed, "", execErr.Error())
		p.outcome.HandleFailure(ctx, promise, execErr, true)
		return
	}

	if result != nil && result.Status == model.PromiseStatusFailed {
		p.recordAttempt(ctx, promise, attemptNumber, startedAt, model.PromiseStatusFailed, result.Summary, result.Error)
		p.outcome.HandleFailure(ctx, promise, errors.New(result.Error), true)
		return
	}

	var summary string
	if result != nil {
		summary = result.Summary
	}
	p.recordAttempt(ctx, promise, attemptNumber, startedAt, model.PromiseStatusCompleted, summary, "")
	p.outcome.HandleSuccess(ctx, promise, summary)
}

func (p *Pool) recordAttempt(ctx context.Context, promise *model.Promise, attemptNumber int, startedAt time.Time, status model.PromiseStatus, output, errDetail string) {
	completedAt := time.Now()
	attempt := &model.ExecutionAttempt{
		PromiseID:     promise.ID,
		AttemptNumber: attemptNumber,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
		Status:        status,
		Output:        output,
		ErrorDetail:   errDetail,
	}

	if err := p.store.AppendAttempt(ctx, attempt); err != nil {
		p.logger.Error("Failed to record execution attempt",
			zap.String("promise_id", promise.ID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err))
	}
}
