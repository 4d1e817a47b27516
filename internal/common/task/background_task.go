package task

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

type task struct {
	function func(ctx context.Context)
	interval time.Duration
	name     string
	cancel   context.CancelFunc
}

// BackgroundTaskManager runs functions repeatedly, waiting a fixed interval after each run completes.
// It is not threadsafe, it should only be accessed from a single thread.
type BackgroundTaskManager struct {
	tasks    []*task
	clock    clock.Clock
	duration *prometheus.HistogramVec
	wg       *sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string, registerer prometheus.Registerer, clock clock.Clock) *BackgroundTaskManager {
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricsPrefix + "background_task_latency_seconds",
			Help:    "Background loop latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"task"})
	registerer.MustRegister(duration)
	return &BackgroundTaskManager{
		tasks:    []*task{},
		clock:    clock,
		duration: duration,
		wg:       &sync.WaitGroup{},
	}
}

// Register starts backgroundTask immediately. It runs until ctx is cancelled or StopAll is called.
// The context passed to backgroundTask is cancelled on stop so that in-flight work can be abandoned.
func (m *BackgroundTaskManager) Register(ctx context.Context, backgroundTask func(ctx context.Context), interval time.Duration, name string) {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{
		function: backgroundTask,
		interval: interval,
		name:     name,
		cancel:   cancel,
	}
	m.startBackgroundTask(taskCtx, t)
	m.tasks = append(m.tasks, t)
}

// StopAll cancels every task and waits up to timeout for them to exit.
// Returns true if the timeout elapsed first.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		t.cancel()
	}
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(ctx context.Context, t *task) {
	observer := m.duration.WithLabelValues(t.name)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			start := m.clock.Now()
			t.function(ctx)
			observer.Observe(m.clock.Since(start).Seconds())

			select {
			case <-m.clock.After(t.interval):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}
