package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/executor"
	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/notify"
	"github.com/t77yq/promise-engine/internal/store"
	"github.com/t77yq/promise-engine/internal/testutil"
)

type executorFunc func(ctx context.Context, promise *model.Promise) (*model.PromiseResult, error)

func (f executorFunc) Execute(ctx context.Context, promise *model.Promise) (*model.PromiseResult, error) {
	return f(ctx, promise)
}

// recordingSink captures delivered notifications
type recordingSink struct {
	mu        sync.Mutex
	completed []notify.Event
	failed    []notify.Event
}

func (s *recordingSink) OnPromiseCompleted(ctx context.Context, event notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, event)
	return nil
}

func (s *recordingSink) OnPromiseFailed(ctx context.Context, event notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, event)
	return nil
}

func (s *recordingSink) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *recordingSink) failedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed)
}

type testEngine struct {
	engine   *Engine
	pool     *executor.Pool
	store    store.PromiseStore
	sink     *recordingSink
	shutdown func()
}

// newTestEngine builds an engine with intervals tightened for tests
func newTestEngine(t *testing.T, poolSize int) *testEngine {
	t.Helper()

	promises := testutil.SetupStore(t)
	sink := &recordingSink{}
	logger := zap.NewNop()

	pool := executor.NewPool(executor.PoolConfig{
		Size:           poolSize,
		DefaultTimeout: 5 * time.Second,
		TaskTimeouts:   map[string]time.Duration{"slow": 30 * time.Millisecond},
	}, promises, logger)

	eng := New(Options{
		SchedulerTick:    10 * time.Millisecond,
		ResolverInterval: 20 * time.Millisecond,
		FailDependents:   true,
		Backoff: &ExponentialBackoff{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		Recovery: RecoveryConfig{
			ScanInterval: time.Minute,
			StallAfter:   30 * time.Minute,
			Retention:    24 * time.Hour,
		},
	}, promises, pool, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, eng.Start(ctx))

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			eng.Stop()
			cancel()
		})
	}
	t.Cleanup(shutdown)

	return &testEngine{
		engine:   eng,
		pool:     pool,
		store:    promises,
		sink:     sink,
		shutdown: shutdown,
	}
}

func (te *testEngine) waitForStatus(t *testing.T, id string, status model.PromiseStatus) *model.Promise {
	t.Helper()

	var promise *model.Promise
	require.Eventually(t, func() bool {
		p, err := te.engine.GetPromise(context.Background(), id)
		if err != nil {
			return false
		}
		promise = p
		return p.Status == status
	}, 5*time.Second, 5*time.Millisecond, "promise %s never reached %s", id, status)

	return promise
}

func TestEngineDependencyFlow(t *testing.T) {
	te := newTestEngine(t, 2)
	ctx := context.Background()

	te.pool.Register("echo", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted, Summary: "done"}, nil
	}))

	aID, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "first",
		TaskType:    "echo",
	})
	require.NoError(t, err)

	bID, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description:  "second",
		TaskType:     "echo",
		Dependencies: []string{aID},
	})
	require.NoError(t, err)

	// B must wait on A
	b, err := te.engine.GetPromise(ctx, bID)
	require.NoError(t, err)
	assert.Equal(t, model.PromiseStatusWaiting, b.Status)

	te.waitForStatus(t, aID, model.PromiseStatusCompleted)
	b = te.waitForStatus(t, bID, model.PromiseStatusCompleted)
	assert.Equal(t, "done", b.ResultSummary)

	require.Eventually(t, func() bool {
		return te.sink.completedCount() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngineFlakyExecutorRetries(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	te.pool.Register("flaky", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return nil, fmt.Errorf("transient failure %d", n)
		}
		return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted, Summary: "third time lucky"}, nil
	}))

	id, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "flaky work",
		TaskType:    "flaky",
		MaxRetries:  3,
	})
	require.NoError(t, err)

	promise := te.waitForStatus(t, id, model.PromiseStatusCompleted)
	assert.Equal(t, 2, promise.RetryCount)
	assert.Equal(t, "third time lucky", promise.ResultSummary)

	attempts, err := te.engine.ListAttempts(ctx, id)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, model.PromiseStatusFailed, attempts[0].Status)
	assert.Equal(t, model.PromiseStatusFailed, attempts[1].Status)
	assert.Equal(t, model.PromiseStatusCompleted, attempts[2].Status)
}

func TestEngineRetriesExhausted(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	te.pool.Register("always_fails", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		return nil, errors.New("permanent failure")
	}))

	id, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "doomed work",
		TaskType:    "always_fails",
		MaxRetries:  2,
	})
	require.NoError(t, err)

	promise := te.waitForStatus(t, id, model.PromiseStatusFailed)
	assert.Equal(t, 2, promise.RetryCount)
	assert.Equal(t, "permanent failure", promise.ErrorMessage)

	// Give the engine a few more ticks; no further attempts may happen
	time.Sleep(100 * time.Millisecond)

	attempts, err := te.engine.ListAttempts(ctx, id)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)

	require.Eventually(t, func() bool {
		return te.sink.failedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEnginePriorityDispatchOrder(t *testing.T) {
	promises := testutil.SetupStore(t)
	sink := &recordingSink{}
	logger := zap.NewNop()

	pool := executor.NewPool(executor.PoolConfig{Size: 1, DefaultTimeout: time.Second}, promises, logger)

	var mu sync.Mutex
	var order []string
	pool.Register("track", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		mu.Lock()
		order = append(order, p.ID)
		mu.Unlock()
		return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted}, nil
	}))

	eng := New(Options{
		SchedulerTick:    10 * time.Millisecond,
		ResolverInterval: 20 * time.Millisecond,
	}, promises, pool, sink, logger)

	// Both promises are pending before the first scheduling tick
	ctx := context.Background()
	lowID, err := eng.CreatePromise(ctx, CreateRequest{Description: "low", TaskType: "track", Priority: 5})
	require.NoError(t, err)
	highID, err := eng.CreatePromise(ctx, CreateRequest{Description: "high", TaskType: "track", Priority: 1})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(runCtx))
	defer eng.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{highID, lowID}, order)
}

func TestEngineCycleRejection(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	// Caller-supplied IDs may be referenced before they exist, which is
	// the only way a create can close a cycle
	_, err := te.engine.CreatePromise(ctx, CreateRequest{
		ID: "promise-a", Description: "a", TaskType: "echo",
		Dependencies: []string{"promise-c"},
	})
	require.NoError(t, err)

	_, err = te.engine.CreatePromise(ctx, CreateRequest{
		ID: "promise-b", Description: "b", TaskType: "echo",
		Dependencies: []string{"promise-a"},
	})
	require.NoError(t, err)

	_, err = te.engine.CreatePromise(ctx, CreateRequest{
		ID: "promise-c", Description: "c", TaskType: "echo",
		Dependencies: []string{"promise-b"},
	})
	require.ErrorIs(t, err, store.ErrCircularDependency)

	_, err = te.engine.GetPromise(ctx, "promise-c")
	assert.ErrorIs(t, err, store.ErrPromiseNotFound)
}

func TestEngineValidation(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	_, err := te.engine.CreatePromise(ctx, CreateRequest{TaskType: "echo"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = te.engine.CreatePromise(ctx, CreateRequest{Description: "no type"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = te.engine.CreatePromise(ctx, CreateRequest{
		Description: "bad priority", TaskType: "echo", Priority: -1,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = te.engine.CreatePromise(ctx, CreateRequest{
		ID: "self", Description: "self dep", TaskType: "echo",
		Dependencies: []string{"self"},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEngineUnknownTaskType(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	id, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "nobody home",
		TaskType:    "unregistered",
	})
	require.NoError(t, err)

	promise := te.waitForStatus(t, id, model.PromiseStatusFailed)
	assert.Contains(t, promise.ErrorMessage, "unknown task type")

	// Non-retryable: exactly one attempt
	attempts, err := te.engine.ListAttempts(ctx, id)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestEngineTimeout(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	te.pool.Register("slow", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted}, nil
	}))

	id, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "too slow",
		TaskType:    "slow",
		MaxRetries:  1,
	})
	require.NoError(t, err)

	promise := te.waitForStatus(t, id, model.PromiseStatusFailed)
	assert.Contains(t, promise.ErrorMessage, "timed out")
}

func TestEngineCancellation(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	t.Run("Waiting Promise", func(t *testing.T) {
		// Park the dependent behind a dependency that never materializes
		id, err := te.engine.CreatePromise(ctx, CreateRequest{
			Description: "cancellable", TaskType: "echo",
			Dependencies: []string{"never-created"},
		})
		require.NoError(t, err)

		cancelled, err := te.engine.CancelPromise(ctx, id)
		require.NoError(t, err)
		assert.True(t, cancelled)

		promise, err := te.engine.GetPromise(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.PromiseStatusCancelled, promise.Status)
	})

	t.Run("Completed Promise", func(t *testing.T) {
		te.pool.Register("instant", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
			return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted}, nil
		}))

		id, err := te.engine.CreatePromise(ctx, CreateRequest{
			Description: "already done", TaskType: "instant",
		})
		require.NoError(t, err)
		te.waitForStatus(t, id, model.PromiseStatusCompleted)

		cancelled, err := te.engine.CancelPromise(ctx, id)
		assert.ErrorIs(t, err, ErrNotCancellable)
		assert.False(t, cancelled)
	})

	t.Run("Unknown Promise", func(t *testing.T) {
		_, err := te.engine.CancelPromise(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrPromiseNotFound)
	})
}

func TestEngineCreateCheckOutlivesRequestContext(t *testing.T) {
	promises := testutil.SetupStore(t)
	sink := &recordingSink{}
	logger := zap.NewNop()

	pool := executor.NewPool(executor.PoolConfig{Size: 1, DefaultTimeout: time.Second}, promises, logger)
	pool.Register("echo", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		return &model.PromiseResult{PromiseID: p.ID, Status: model.PromiseStatusCompleted}, nil
	}))

	// Polling is effectively off: only the create-time dependency check
	// can promote the dependent within the test window
	eng := New(Options{
		SchedulerTick:    10 * time.Millisecond,
		ResolverInterval: time.Minute,
	}, promises, pool, sink, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(runCtx))
	defer eng.Stop()

	depID, err := eng.CreatePromise(context.Background(), CreateRequest{
		Description: "dependency", TaskType: "echo",
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, err := eng.GetPromise(context.Background(), depID)
		return err == nil && p.Status == model.PromiseStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	id, err := eng.CreatePromise(reqCtx, CreateRequest{
		Description:  "dependent",
		TaskType:     "echo",
		Dependencies: []string{depID},
	})
	require.NoError(t, err)
	cancelReq()

	require.Eventually(t, func() bool {
		p, err := eng.GetPromise(context.Background(), id)
		return err == nil && p.Status == model.PromiseStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestEngineFailedDependencyPropagates(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()

	te.pool.Register("always_fails", executorFunc(func(ctx context.Context, p *model.Promise) (*model.PromiseResult, error) {
		return nil, errors.New("nope")
	}))

	depID, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description: "doomed dependency",
		TaskType:    "always_fails",
		MaxRetries:  1,
	})
	require.NoError(t, err)

	id, err := te.engine.CreatePromise(ctx, CreateRequest{
		Description:  "dependent",
		TaskType:     "echo",
		Dependencies: []string{depID},
	})
	require.NoError(t, err)

	te.waitForStatus(t, depID, model.PromiseStatusFailed)

	promise := te.waitForStatus(t, id, model.PromiseStatusFailed)
	assert.Contains(t, promise.ErrorMessage, depID)
}
