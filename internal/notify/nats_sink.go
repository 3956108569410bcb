package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	promiseStreamName       = "PROMISES"
	promiseStreamSubjects   = "promise.*"
	promiseCompletedSubject = "promise.completed"
	promiseFailedSubject    = "promise.failed"
	promiseStreamMaxAge     = 24 * time.Hour
)

// NATSSink publishes promise outcomes to JetStream so host applications
// (chat frontends, webhooks) can consume them out of process
type NATSSink struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSSink creates the sink and ensures the promise event stream exists
func NewNATSSink(js nats.JetStreamContext, logger *zap.Logger) (*NATSSink, error) {
	_, err := js.StreamInfo(promiseStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     promiseStreamName,
			Subjects: []string{promiseStreamSubjects},
			Storage:  nats.FileStorage,
			MaxAge:   promiseStreamMaxAge,
		}); err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", promiseStreamName, err)
		}
	}

	return &NATSSink{
		logger: logger.Named("nats-sink"),
		js:     js,
	}, nil
}

// OnPromiseCompleted implements Sink
func (s *NATSSink) OnPromiseCompleted(ctx context.Context, event Event) error {
	return s.publish(promiseCompletedSubject, event)
}

// OnPromiseFailed implements Sink
func (s *NATSSink) OnPromiseFailed(ctx context.Context, event Event) error {
	return s.publish(promiseFailedSubject, event)
}

func (s *NATSSink) publish(subject string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	s.logger.Debug("Published promise event",
		zap.String("subject", subject),
		zap.String("promise_id", event.PromiseID))

	return nil
}

// LoggingSink writes outcomes to the log. Used when no external sink is wired.
type LoggingSink struct {
	logger *zap.Logger
}

// NewLoggingSink creates a log-only sink
func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{logger: logger.Named("logging-sink")}
}

// OnPromiseCompleted implements Sink
func (s *LoggingSink) OnPromiseCompleted(ctx context.Context, event Event) error {
	s.logger.Info("Promise completed",
		zap.String("promise_id", event.PromiseID),
		zap.String("result", event.ResultSummary),
		zap.String("origin_ref", event.OriginRef))
	return nil
}

// OnPromiseFailed implements Sink
func (s *LoggingSink) OnPromiseFailed(ctx context.Context, event Event) error {
	s.logger.Warn("Promise failed",
		zap.String("promise_id", event.PromiseID),
		zap.String("error", event.ErrorMessage),
		zap.String("origin_ref", event.OriginRef))
	return nil
}
