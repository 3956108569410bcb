package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/executor"
	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/store"
)

// DispatchScheduler periodically selects dispatchable pending promises and
// hands them to the worker pool. Selection is strict priority order with
// FIFO tie-break on creation time; the claim is a conditional store update,
// so concurrent ticks and recovery passes can never double-dispatch.
type DispatchScheduler struct {
	logger *zap.Logger
	store  store.PromiseStore
	pool   *executor.Pool
	tick   time.Duration
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewDispatchScheduler creates a new dispatch scheduler
func NewDispatchScheduler(promises store.PromiseStore, pool *executor.Pool, tick time.Duration, logger *zap.Logger) *DispatchScheduler {
	return &DispatchScheduler{
		logger: logger.Named("dispatch-scheduler"),
		store:  promises,
		pool:   pool,
		tick:   tick,
		stop:   make(chan struct{}),
	}
}

// Start starts the scheduling loop
func (s *DispatchScheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting dispatch scheduler", zap.Duration("tick", s.tick))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduleLoop(ctx)
	}()
	return nil
}

// Stop stops the scheduling loop and waits for an in-flight pass. The pool
// may only be stopped after this returns, otherwise a mid-pass dispatch
// could slip past the pool's own shutdown wait.
func (s *DispatchScheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *DispatchScheduler) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch runs one scheduling pass. A store error aborts the pass; the
// next tick retries with no promise state corrupted.
func (s *DispatchScheduler) dispatch(ctx context.Context) {
	free := s.pool.FreeSlots()
	if free == 0 {
		return
	}

	promises, err := s.store.ListDispatchable(ctx, time.Now(), free)
	if err != nil {
		s.logger.Error("Scheduling pass aborted", zap.Error(err))
		return
	}

	for _, promise := range promises {
		now := time.Now()
		claimed, err := s.store.Claim(ctx, promise.ID, now)
		if err != nil {
			s.logger.Error("Scheduling pass aborted", zap.Error(err))
			return
		}
		if !claimed {
			continue
		}

		promise.Status = model.PromiseStatusInProgress
		promise.StartedAt = &now

		s.logger.Info("Dispatching promise",
			zap.String("promise_id", promise.ID),
			zap.String("task_type", promise.TaskType),
			zap.Int("priority", promise.Priority))

		s.pool.Execute(ctx, promise)
	}
}
