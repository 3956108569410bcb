package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/testutil"
)

type captureSink struct {
	mu        sync.Mutex
	completed []Event
	failed    []Event
	err       error
}

func (s *captureSink) OnPromiseCompleted(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, event)
	return s.err
}

func (s *captureSink) OnPromiseFailed(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, event)
	return s.err
}

func (s *captureSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.failed)
}

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := &captureSink{}
	dispatcher := NewDispatcher(sink, 16, zap.NewNop())
	require.NoError(t, dispatcher.Start(context.Background()))

	dispatcher.PromiseCompleted(Event{
		PromiseID:     "p1",
		ResultSummary: "all good",
		OriginRef:     "chat-7",
	})
	dispatcher.PromiseFailed(Event{
		PromiseID:    "p2",
		ErrorMessage: "broke",
	})

	require.Eventually(t, func() bool {
		completed, failed := sink.counts()
		return completed == 1 && failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	dispatcher.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "p1", sink.completed[0].PromiseID)
	assert.Equal(t, model.PromiseStatusCompleted, sink.completed[0].Status)
	assert.Equal(t, "chat-7", sink.completed[0].OriginRef)
	assert.Equal(t, "broke", sink.failed[0].ErrorMessage)
}

func TestDispatcherSinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unreachable")}
	dispatcher := NewDispatcher(sink, 16, zap.NewNop())
	require.NoError(t, dispatcher.Start(context.Background()))

	// Sink errors are logged, never propagated; enqueue stays usable
	dispatcher.PromiseCompleted(Event{PromiseID: "p1"})
	dispatcher.PromiseCompleted(Event{PromiseID: "p2"})

	require.Eventually(t, func() bool {
		completed, _ := sink.counts()
		return completed == 2
	}, 2*time.Second, 5*time.Millisecond)

	dispatcher.Stop()
}

func TestDispatcherNeverBlocks(t *testing.T) {
	sink := &captureSink{}
	dispatcher := NewDispatcher(sink, 1, zap.NewNop())
	// Not started: nothing drains the buffer

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			dispatcher.PromiseCompleted(Event{PromiseID: "p"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer")
	}
}

func TestNATSSinkPublishes(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	sink, err := NewNATSSink(js, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.OnPromiseCompleted(ctx, Event{
		PromiseID:     "p1",
		Status:        model.PromiseStatusCompleted,
		ResultSummary: "shipped",
		OriginRef:     "chat-9",
	}))
	require.NoError(t, sink.OnPromiseFailed(ctx, Event{
		PromiseID:    "p2",
		Status:       model.PromiseStatusFailed,
		ErrorMessage: "sank",
	}))

	completed, err := testutil.ConsumeMessages(js, "promise.completed", 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, completed, 1)

	var event Event
	require.NoError(t, json.Unmarshal(completed[0], &event))
	assert.Equal(t, "p1", event.PromiseID)
	assert.Equal(t, "shipped", event.ResultSummary)
	assert.Equal(t, "chat-9", event.OriginRef)

	failed, err := testutil.ConsumeMessages(js, "promise.failed", 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}
