package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/config"
	"github.com/t77yq/promise-engine/internal/engine"
	"github.com/t77yq/promise-engine/internal/executor"
	"github.com/t77yq/promise-engine/internal/handler"
	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Open the promise store
	promises, err := store.NewSQLitePromiseStore(logger, cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open promise store", zap.Error(err))
	}
	defer promises.Close()

	// Pick the notification sink: NATS when configured, logging otherwise
	var sink notify.Sink = notify.NewLoggingSink(logger)
	if cfg.NATS.Enabled {
		opts := []nats.Option{
			nats.Name(cfg.App.Name),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
			nats.Timeout(cfg.NATS.ConnectTimeout),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Warn("NATS disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		}

		nc, err := nats.Connect(cfg.NATS.URL, opts...)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}

		sink, err = notify.NewNATSSink(js, logger)
		if err != nil {
			logger.Fatal("Failed to create NATS sink", zap.Error(err))
		}

		logger.Info("Publishing promise events to NATS",
			zap.String("url", nc.ConnectedUrl()))
	}

	// Create the worker pool and register executors
	pool := executor.NewPool(executor.PoolConfig{
		Size:           cfg.Pool.Size,
		DefaultTimeout: cfg.Pool.DefaultTimeout,
		TaskTimeouts:   cfg.Pool.TaskTimeouts,
	}, promises, logger)

	pool.Register("http_request", handler.NewHTTPRequestExecutor(logger))
	pool.Register("shell_command", handler.NewShellCommandExecutor(logger))

	// Wire the engine
	promiseEngine := engine.New(engine.Options{
		SchedulerTick:    cfg.Scheduler.Tick,
		ResolverInterval: cfg.Resolver.PollInterval,
		FailDependents:   cfg.Resolver.FailDependents,
		Backoff: &engine.ExponentialBackoff{
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
		Recovery: engine.RecoveryConfig{
			ScanInterval: cfg.Recovery.ScanInterval,
			StallAfter:   cfg.Recovery.StallAfter,
			Retention:    cfg.Recovery.Retention,
		},
		NotifyBuffer: cfg.Notify.Buffer,
	}, promises, pool, sink, logger)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := promiseEngine.Start(ctx); err != nil {
		logger.Fatal("Failed to start promise engine", zap.Error(err))
	}

	// Periodically log engine status
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				running := pool.RunningPromises()
				pending, err := promiseEngine.ListPromises(ctx, model.PromiseStatusPending, model.PromiseStatusWaiting)
				if err != nil {
					logger.Error("Failed to list promises", zap.Error(err))
					continue
				}

				stats := pool.Stats()
				logger.Info("Engine status",
					zap.Int("running", len(running)),
					zap.Int("queued", len(pending)),
					zap.Float64("cpu_usage", stats.CPUUsage),
					zap.Float64("memory_usage", stats.MemoryUsage))
			}
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	promiseEngine.Stop()
	logger.Info("Server shutting down gracefully")
}
