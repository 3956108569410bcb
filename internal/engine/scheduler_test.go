package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/executor"
	"github.com/t77yq/promise-engine/internal/model"
	"github.com/t77yq/promise-engine/internal/store"
	"github.com/t77yq/promise-engine/internal/testutil"
)

// gatedStore stalls ListDispatchable until released so a scheduling pass
// can be held in flight deliberately
type gatedStore struct {
	store.PromiseStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) ListDispatchable(ctx context.Context, now time.Time, limit int) ([]*model.Promise, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil, nil
}

func TestDispatchSchedulerStopWaitsForPass(t *testing.T) {
	promises := &gatedStore{
		PromiseStore: testutil.SetupStore(t),
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	pool := executor.NewPool(executor.PoolConfig{Size: 1, DefaultTimeout: time.Second}, promises, zap.NewNop())

	scheduler := NewDispatchScheduler(promises, pool, 5*time.Millisecond, zap.NewNop())
	require.NoError(t, scheduler.Start(context.Background()))

	// A pass is now blocked inside the store
	<-promises.entered

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a scheduling pass was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(promises.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the pass finished")
	}
}
