package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"k8s.io/utils/clock"
)

func TestBackgroundTaskManager_RunsRepeatedlyUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry := prometheus.NewRegistry()
	manager := NewBackgroundTaskManager("test_", registry, clock.RealClock{})
	var runs int32
	manager.Register(context.Background(), func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}, time.Millisecond, "counter")

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 5*time.Second, time.Millisecond)

	timedOut := manager.StopAll(5 * time.Second)
	assert.False(t, timedOut)
	count, err := testutil.GatherAndCount(registry, "test_background_task_latency_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBackgroundTaskManager_StopsOnParentCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	manager := NewBackgroundTaskManager("test_", prometheus.NewRegistry(), clock.RealClock{})
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	manager.Register(ctx, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
	}, time.Hour, "slow")

	<-started
	cancel()

	assert.False(t, manager.StopAll(5*time.Second))
}

func TestBackgroundTaskManager_TaskContextCancelledOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	manager := NewBackgroundTaskManager("test_", prometheus.NewRegistry(), clock.RealClock{})
	entered := make(chan struct{})
	manager.Register(context.Background(), func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
	}, time.Hour, "blocking")

	<-entered
	assert.False(t, manager.StopAll(5*time.Second))
}
