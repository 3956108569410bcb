package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
)

// Event carries a terminal promise outcome to the notification sink
type Event struct {
	PromiseID     string              `json:"promise_id"`
	Status        model.PromiseStatus `json:"status"`
	ResultSummary string              `json:"result_summary,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	OriginRef     string              `json:"origin_ref,omitempty"`
}

// Sink receives completion and failure events. Implemented by the host
// application; delivery failures never affect the promise itself.
type Sink interface {
	OnPromiseCompleted(ctx context.Context, event Event) error
	OnPromiseFailed(ctx context.Context, event Event) error
}

// Dispatcher delivers events to the sink asynchronously. Enqueueing never
// blocks the execution path; when the buffer is full the event is dropped
// with a log line.
type Dispatcher struct {
	logger *zap.Logger
	sink   Sink
	events chan Event
	stop   chan struct{}
	done   sync.WaitGroup
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(sink Sink, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		logger: logger.Named("notification-dispatcher"),
		sink:   sink,
		events: make(chan Event, buffer),
		stop:   make(chan struct{}),
	}
}

// Start starts the delivery goroutine
func (d *Dispatcher) Start(ctx context.Context) error {
	d.done.Add(1)
	go d.deliverLoop(ctx)
	return nil
}

// Stop stops the dispatcher after draining buffered events
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.done.Wait()
}

// PromiseCompleted enqueues a completion event
func (d *Dispatcher) PromiseCompleted(event Event) {
	event.Status = model.PromiseStatusCompleted
	d.enqueue(event)
}

// PromiseFailed enqueues a failure event
func (d *Dispatcher) PromiseFailed(event Event) {
	event.Status = model.PromiseStatusFailed
	d.enqueue(event)
}

func (d *Dispatcher) enqueue(event Event) {
	select {
	case d.events <- event:
	default:
		d.logger.Warn("Notification buffer full, dropping event",
			zap.String("promise_id", event.PromiseID),
			zap.String("status", string(event.Status)))
	}
}

func (d *Dispatcher) deliverLoop(ctx context.Context) {
	defer d.done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			// Drain whatever is already buffered before exiting
			for {
				select {
				case event := <-d.events:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		case event := <-d.events:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	var err error
	if event.Status == model.PromiseStatusCompleted {
		err = d.sink.OnPromiseCompleted(ctx, event)
	} else {
		err = d.sink.OnPromiseFailed(ctx, event)
	}

	if err != nil {
		d.logger.Error("Failed to deliver notification",
			zap.String("promise_id", event.PromiseID),
			zap.String("status", string(event.Status)),
			zap.Error(err))
	}
}
