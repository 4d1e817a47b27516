package scheduler

import (
	"context"
	"time"

	"github.com/G-Research/dbheartbeat/internal/common/hbcontext"
	"github.com/G-Research/dbheartbeat/internal/common/task"
)

const taskNamePrefix = "heartbeat_"

// Scheduler runs one independent loop per worker, sleeping interval after every cycle.
type Scheduler struct {
	taskManager *task.BackgroundTaskManager
	interval    time.Duration
	workers     []*Worker
}

func NewScheduler(taskManager *task.BackgroundTaskManager, interval time.Duration, workers ...*Worker) *Scheduler {
	return &Scheduler{
		taskManager: taskManager,
		interval:    interval,
		workers:     workers,
	}
}

func (s *Scheduler) Workers() []*Worker {
	return s.workers
}

// Start launches every loop and returns immediately. The loops stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx *hbcontext.Context) {
	for _, w := range s.workers {
		worker := w
		log := ctx.Log.WithField("target", worker.Name())
		log.Infof("Starting heartbeat loop, writing every %s", s.interval)
		s.taskManager.Register(ctx, func(taskCtx context.Context) {
			worker.RunOnce(hbcontext.New(taskCtx, log))
		}, s.interval, taskNamePrefix+worker.Name())
	}
}

// Stop cancels every loop and waits up to timeout for in-flight attempts to be abandoned.
// Returns true if the timeout elapsed first.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	return s.taskManager.StopAll(timeout)
}
