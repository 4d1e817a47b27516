package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"k8s.io/utils/clock"

	"github.com/G-Research/dbheartbeat/internal/common/hbcontext"
	"github.com/G-Research/dbheartbeat/internal/common/task"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
)

func TestScheduler_RunsOneLoopPerTargetUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	alpha := newFixture(t, sqliteTarget(t, "alpha"), store.NewDriverConnector(time.Second, time.Second), nil)
	beta := newFixture(t, sqliteTarget(t, "beta"), store.NewDriverConnector(time.Second, time.Second), nil)
	defer func() {
		alpha.manager.Invalidate(context.Background())
		beta.manager.Invalidate(context.Background())
	}()

	taskManager := task.NewBackgroundTaskManager("test_", prometheus.NewRegistry(), clock.RealClock{})
	scheduler := NewScheduler(taskManager, time.Millisecond, alpha.worker, beta.worker)
	assert.Len(t, scheduler.Workers(), 2)

	scheduler.Start(testContext())

	successes := func(f *fixture) float64 {
		return counterValue(t, f.registry, "test_write_success_total", map[string]string{"target": f.target.Name})
	}
	assert.Eventually(t, func() bool {
		return successes(alpha) >= 3 && successes(beta) >= 3
	}, 10*time.Second, 5*time.Millisecond)

	assert.False(t, scheduler.Stop(10*time.Second))
	stopped := successes(alpha)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, successes(alpha))
}

func TestScheduler_StopsOnContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, sqliteTarget(t, "alpha"), store.NewDriverConnector(time.Second, time.Second), nil)
	defer f.manager.Invalidate(context.Background())
	scheduler := NewScheduler(task.NewBackgroundTaskManager("test_", prometheus.NewRegistry(), clock.RealClock{}), time.Hour, f.worker)

	ctx, cancel := hbcontext.WithCancel(testContext())
	scheduler.Start(ctx)
	assert.Eventually(t, func() bool { return f.worker.State() == Sleeping }, 10*time.Second, time.Millisecond)
	cancel()

	assert.False(t, scheduler.Stop(10*time.Second))
}
