package scheduler

import (
	"sync/atomic"

	"github.com/G-Research/dbheartbeat/internal/common/hbcontext"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/connection"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/tracing"
)

type State int32

const (
	Idle State = iota
	Connecting
	Writing
	Succeeded
	Failed
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Writing:
		return "writing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// WriteRecorder receives the outcome of every completed write attempt.
type WriteRecorder interface {
	RecordWrite(o outcome.Outcome)
}

// Worker drives the heartbeat cycle for a single target. RunOnce must not be called concurrently;
// State may be read from any goroutine.
type Worker struct {
	manager    *connection.Manager
	writer     *store.Writer
	classifier outcome.Classifier
	recorder   WriteRecorder
	observer   tracing.Observer
	state      int32
}

func NewWorker(
	manager *connection.Manager,
	writer *store.Writer,
	classifier outcome.Classifier,
	recorder WriteRecorder,
	observer tracing.Observer,
) *Worker {
	if observer == nil {
		observer = tracing.NoopObserver{}
	}
	return &Worker{
		manager:    manager,
		writer:     writer,
		classifier: classifier,
		recorder:   recorder,
		observer:   observer,
	}
}

func (w *Worker) Name() string {
	return w.manager.Target().Name
}

func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

func (w *Worker) setState(s State) {
	atomic.StoreInt32(&w.state, int32(s))
}

// RunOnce performs one cycle: connect if there is no live handle, write one heartbeat, classify and
// record the result, and reconnect straight away if the write failed. Errors never escape; the
// caller sleeps for the write interval afterwards.
//
// A cycle whose connect fails records no write, unless failure simulation is enabled: the simulated
// error is raised and recorded whether or not the database is reachable, and the connect already
// attempted in the cycle stands in for the reconnect. A write abandoned because ctx was cancelled
// is not recorded.
func (w *Worker) RunOnce(ctx *hbcontext.Context) {
	defer w.setState(Sleeping)
	t := w.manager.Target()

	connectFailed := false
	handle := w.manager.Current()
	if handle == nil {
		w.setState(Connecting)
		var err error
		handle, err = w.manager.Connect(ctx)
		if err != nil {
			w.setState(Failed)
			if ctx.Err() != nil {
				return
			}
			if !t.SimulateFailure {
				logging.WithStacktrace(ctx.Log, err).Warn("No database connection, skipping write")
				return
			}
			connectFailed = true
		}
	}

	w.setState(Writing)
	attemptCtx, end := w.observer.StartAttempt(ctx, t, w.writer.InsertStatement(handle))
	latency, err := w.writer.WriteOnce(attemptCtx, handle)
	if ctx.Err() != nil {
		end(outcome.Failure, ctx.Err())
		ctx.Log.Debug("Write abandoned on shutdown")
		return
	}

	kind := w.classifier.Classify(err)
	end(kind, err)
	w.recorder.RecordWrite(outcome.Outcome{
		Target:  t.Name,
		Kind:    kind,
		Latency: latency,
		Err:     err,
	})

	if err == nil {
		w.setState(Succeeded)
		ctx.Log.Debugf("Timestamp written in %s", latency)
		return
	}

	w.setState(Failed)
	logging.WithStacktrace(ctx.Log, err).
		WithField("outcome", kind).
		Error("Error writing timestamp to database, reinitialising connection")
	if connectFailed {
		return
	}
	w.setState(Connecting)
	if _, err := w.manager.Connect(ctx); err != nil {
		w.setState(Failed)
	}
}
