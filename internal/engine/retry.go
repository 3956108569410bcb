package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
)

// RetryStrategy defines the interface for retry strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given attempt
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// RetryManager resolves execution outcomes: completions are made terminal
// and announced, failures are rescheduled with backoff until retries run out.
type RetryManager struct {
	logger     *zap.Logger
	store      store.PromiseStore
	strategy   RetryStrategy
	dispatcher *notify.Dispatcher
	resolver   *DependencyResolver
}

// NewRetryManager creates a new retry manager
func NewRetryManager(promises store.PromiseStore, strategy RetryStrategy, dispatcher *notify.Dispatcher, resolver *DependencyResolver, logger *zap.Logger) *RetryManager {
	return &RetryManager{
		logger:     logger.Named("retry-manager"),
		store:      promises,
		strategy:   strategy,
		dispatcher: dispatcher,
		resolver:   resolver,
	}
}

// HandleSuccess records a successful execution outcome
func (rm *RetryManager) HandleSuccess(ctx context.Context, promise *model.Promise, summary string) {
	ok, err := rm.store.Complete(ctx, promise.ID, summary, time.Now())
	if err != nil {
		rm.logger.Error("Failed to complete promise",
			zap.String("promise_id", promise.ID),
			zap.Error(err))
		return
	}
	if !ok {
		// The promise left in_progress while the executor ran, typically
		// because recovery re-queued it. The late result is discarded.
		rm.logger.Warn("Discarding stale execution result",
			zap.String("promise_id", promise.ID))
		return
	}

	rm.logger.Info("Promise completed",
		zap.String("promise_id", promise.ID),
		zap.Int("retry_count", promise.RetryCount))

	rm.dispatcher.PromiseCompleted(notify.Event{
		PromiseID:     promise.ID,
		Status:        model.PromiseStatusCompleted,
		ResultSummary: summary,
		OriginRef:     promise.OriginRef,
	})
	rm.resolver.NotifyTerminal(promise.ID)
}

// HandleFailure records a failed execution outcome, scheduling a retry when
// the failure is retryable and the retry budget is not exhausted
func (rm *RetryManager) HandleFailure(ctx context.Context, promise *model.Promise, execErr error, retryable bool) {
	errMsg := execErr.Error()

	retryCount := promise.RetryCount + 1
	if retryCount > promise.MaxRetries {
		retryCount = promise.MaxRetries
	}

	if retryable && retryCount < promise.MaxRetries {
		delay := rm.strategy.NextRetry(retryCount)
		ok, err := rm.store.ScheduleRetry(ctx, promise.ID, retryCount, time.Now().Add(delay))
		if err != nil {
			rm.logger.Error("Failed to schedule retry",
				zap.String("promise_id", promise.ID),
				zap.Error(err))
			return
		}
		if !ok {
			rm.logger.Warn("Discarding stale execution failure",
				zap.String("promise_id", promise.ID))
			return
		}

		rm.logger.Info("Promise scheduled for retry",
			zap.String("promise_id", promise.ID),
			zap.Int("retry_count", retryCount),
			zap.Duration("delay", delay),
			zap.String("error", errMsg))
		return
	}

	ok, err := rm.store.FailAfterRetries(ctx, promise.ID, retryCount, errMsg, time.Now())
	if err != nil {
		rm.logger.Error("Failed to mark promise failed",
			zap.String("promise_id", promise.ID),
			zap.Error(err))
		return
	}
	if !ok {
		rm.logger.Warn("Discarding stale execution failure",
			zap.String("promise_id", promise.ID))
		return
	}

	rm.logger.Warn("Promise failed terminally",
		zap.String("promise_id", promise.ID),
		zap.Int("retry_count", retryCount),
		zap.String("error", errMsg))

	rm.dispatcher.PromiseFailed(notify.Event{
		PromiseID:    promise.ID,
		Status:       model.PromiseStatusFailed,
		ErrorMessage: errMsg,
		OriginRef:    promise.OriginRef,
	})
	rm.resolver.NotifyTerminal(promise.ID)
}
