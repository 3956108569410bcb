package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
)

// RecoveryConfig defines configuration for the recovery manager
type RecoveryConfig struct {
	// ScanInterval is how often stalled promises are scanned for
	ScanInterval time.Duration

	// StallAfter is how long an in_progress promise may run before it is
	// presumed orphaned by a crash
	StallAfter time.Duration

	// Retention is how long terminal promises are kept before purging
	Retention time.Duration
}

// RecoveryManager reconciles promises orphaned by a crash back into a
// schedulable state. It runs once at startup and then on a cron schedule,
// and also owns the retention purge of old terminal promises.
type RecoveryManager struct {
	logger     *zap.Logger
	store      store.PromiseStore
	resolver   *DependencyResolver
	dispatcher *notify.Dispatcher
	config     RecoveryConfig
	cron       *cron.Cron
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(promises store.PromiseStore, resolver *DependencyResolver, dispatcher *notify.Dispatcher, config RecoveryConfig, logger *zap.Logger) *RecoveryManager {
	recoveryLogger := logger.Named("recovery-manager")
	adapter := &cronLogger{logger: recoveryLogger.Named("cron")}

	return &RecoveryManager{
		logger:     recoveryLogger,
		store:      promises,
		resolver:   resolver,
		dispatcher: dispatcher,
		config:     config,
		cron:       cron.New(cron.WithChain(cron.Recover(adapter))),
	}
}

// Start runs the startup reconciliation pass and schedules the periodic ones
func (m *RecoveryManager) Start(ctx context.Context) error {
	m.logger.Info("Starting recovery manager",
		zap.Duration("scan_interval", m.config.ScanInterval),
		zap.Duration("stall_after", m.config.StallAfter),
		zap.Duration("retention", m.config.Retention))

	// Startup pass: anything still in_progress predates this process, and
	// waiting promises may have missed terminal events across the restart.
	m.RecoverStalled(ctx)
	m.resolver.ResolveAll(ctx)

	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.config.ScanInterval), func() {
		m.RecoverStalled(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule stall scan: %w", err)
	}

	if _, err := m.cron.AddFunc("@daily", func() {
		if _, err := m.store.PurgeTerminalBefore(ctx, time.Now().Add(-m.config.Retention)); err != nil {
			m.logger.Error("Retention purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention purge: %w", err)
	}

	m.cron.Start()
	return nil
}

// Stop stops the periodic passes
func (m *RecoveryManager) Stop() {
	m.cron.Stop()
}

// RecoverStalled re-queues in_progress promises whose start time exceeds
// the stall threshold. The conditional transitions make the pass idempotent:
// a promise is re-queued exactly once however many scans observe it.
func (m *RecoveryManager) RecoverStalled(ctx context.Context) {
	cutoff := time.Now().Add(-m.config.StallAfter)

	stalled, err := m.store.ListStalled(ctx, cutoff)
	if err != nil {
		m.logger.Error("Failed to list stalled promises", zap.Error(err))
		return
	}

	for _, promise := range stalled {
		m.recover(ctx, promise)
	}
}

func (m *RecoveryManager) recover(ctx context.Context, promise *model.Promise) {
	retryCount := promise.RetryCount + 1
	if retryCount > promise.MaxRetries {
		retryCount = promise.MaxRetries
	}

	if retryCount < promise.MaxRetries {
		ok, err := m.store.ScheduleRetry(ctx, promise.ID, retryCount, time.Now())
		if err != nil {
			m.logger.Error("Failed to re-queue stalled promise",
				zap.String("promise_id", promise.ID),
				zap.Error(err))
			return
		}
		if ok {
			m.logger.Warn("Re-queued stalled promise",
				zap.String("promise_id", promise.ID),
				zap.Int("retry_count", retryCount),
				zap.Timep("started_at", promise.StartedAt))
		}
		return
	}

	errMsg := "execution interrupted and retry budget exhausted"
	ok, err := m.store.FailAfterRetries(ctx, promise.ID, retryCount, errMsg, time.Now())
	if err != nil {
		m.logger.Error("Failed to fail stalled promise",
			zap.String("promise_id", promise.ID),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}

	m.logger.Warn("Stalled promise failed terminally",
		zap.String("promise_id", promise.ID),
		zap.Int("retry_count", retryCount))

	m.dispatcher.PromiseFailed(notify.Event{
		PromiseID:    promise.ID,
		Status:       model.PromiseStatusFailed,
		ErrorMessage: errMsg,
		OriginRef:    promise.OriginRef,
	})
	m.resolver.NotifyTerminal(promise.ID)
}
