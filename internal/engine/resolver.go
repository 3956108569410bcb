package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
)

// DependencyResolver promotes waiting promises to pending once every
// dependency has completed. It polls on a fixed interval and additionally
// reacts to terminal transitions through NotifyTerminal, so direct
// dependents don't wait out a full poll cycle. Correctness rests on the
// polling pass alone; the event path is an optimization.
type DependencyResolver struct {
	logger         *zap.Logger
	store          store.PromiseStore
	dispatcher     *notify.Dispatcher
	interval       time.Duration
	failDependents bool
	events         chan string
	stop           chan struct{}
}

// NewDependencyResolver creates a new dependency resolver. When
// failDependents is set, a terminally failed or cancelled dependency fails
// its dependents instead of leaving them waiting forever.
func NewDependencyResolver(promises store.PromiseStore, dispatcher *notify.Dispatcher, interval time.Duration, failDependents bool, logger *zap.Logger) *DependencyResolver {
	return &DependencyResolver{
		logger:         logger.Named("dependency-resolver"),
		store:          promises,
		dispatcher:     dispatcher,
		interval:       interval,
		failDependents: failDependents,
		events:         make(chan string, 64),
		stop:           make(chan struct{}),
	}
}

// Start starts the resolution loop
func (r *DependencyResolver) Start(ctx context.Context) error {
	r.logger.Info("Starting dependency resolver",
		zap.Duration("interval", r.interval),
		zap.Bool("fail_dependents", r.failDependents))

	go r.resolveLoop(ctx)
	return nil
}

// Stop stops the resolution loop
func (r *DependencyResolver) Stop() {
	close(r.stop)
}

// NotifyTerminal signals that a promise reached a terminal status, so its
// direct dependents can be re-checked immediately. Never blocks; a full
// channel just defers the work to the next polling pass.
func (r *DependencyResolver) NotifyTerminal(promiseID string) {
	select {
	case r.events <- promiseID:
	default:
	}
}

// CheckReady reports whether every dependency of the promise has completed
func (r *DependencyResolver) CheckReady(ctx context.Context, promiseID string) (bool, error) {
	incomplete, err := r.store.CountIncompleteDependencies(ctx, promiseID)
	if err != nil {
		return false, err
	}
	return incomplete == 0, nil
}

// ResolveAll re-checks every waiting promise. Called by the polling loop
// and by the recovery manager at startup, when in-flight terminal events
// from before the restart are lost.
func (r *DependencyResolver) ResolveAll(ctx context.Context) {
	waiting, err := r.store.ListByStatus(ctx, model.PromiseStatusWaiting)
	if err != nil {
		r.logger.Error("Failed to list waiting promises", zap.Error(err))
		return
	}

	for _, promise := range waiting {
		r.resolve(ctx, promise.ID)
	}
}

func (r *DependencyResolver) resolveLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.ResolveAll(ctx)
		case promiseID := <-r.events:
			r.resolveDependents(ctx, promiseID)
		}
	}
}

// resolveDependents re-checks the direct dependents of a promise that just
// reached a terminal status
func (r *DependencyResolver) resolveDependents(ctx context.Context, promiseID string) {
	dependents, err := r.store.ListDependents(ctx, promiseID)
	if err != nil {
		r.logger.Error("Failed to list dependents",
			zap.String("promise_id", promiseID),
			zap.Error(err))
		return
	}

	for _, depID := range dependents {
		r.resolve(ctx, depID)
	}
}

// resolve checks a single waiting promise and promotes or fails it
func (r *DependencyResolver) resolve(ctx context.Context, promiseID string) {
	if r.failDependents {
		failed, err := r.store.ListFailedDependencies(ctx, promiseID)
		if err != nil {
			r.logger.Error("Failed to check failed dependencies",
				zap.String("promise_id", promiseID),
				zap.Error(err))
			return
		}
		if len(failed) > 0 {
			r.failDependent(ctx, promiseID, failed)
			return
		}
	}

	ready, err := r.CheckReady(ctx, promiseID)
	if err != nil {
		r.logger.Error("Failed to check readiness",
			zap.String("promise_id", promiseID),
			zap.Error(err))
		return
	}
	if !ready {
		return
	}

	ok, err := r.store.MarkReady(ctx, promiseID)
	if err != nil {
		r.logger.Error("Failed to mark promise ready",
			zap.String("promise_id", promiseID),
			zap.Error(err))
		return
	}
	if ok {
		r.logger.Info("Promise dependencies satisfied",
			zap.String("promise_id", promiseID))
	}
}

// failDependent terminally fails a waiting promise whose dependencies can
// no longer complete, and cascades to its own dependents
func (r *DependencyResolver) failDependent(ctx context.Context, promiseID string, failedDeps []string) {
	errMsg := fmt.Sprintf("dependency did not complete: %s", strings.Join(failedDeps, ", "))

	ok, err := r.store.Fail(ctx, promiseID, errMsg, time.Now())
	if err != nil {
		r.logger.Error("Failed to fail dependent promise",
			zap.String("promise_id", promiseID),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}

	r.logger.Warn("Promise failed due to failed dependency",
		zap.String("promise_id", promiseID),
		zap.Strings("failed_dependencies", failedDeps))

	promise, err := r.store.Get(ctx, promiseID)
	if err != nil {
		r.logger.Error("Failed to load failed dependent",
			zap.String("promise_id", promiseID),
			zap.Error(err))
		return
	}

	r.dispatcher.PromiseFailed(notify.Event{
		PromiseID:    promiseID,
		Status:       model.PromiseStatusFailed,
		ErrorMessage: errMsg,
		OriginRef:    promise.OriginRef,
	})
	r.NotifyTerminal(promiseID)
}
