package store

import (
	"context"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

var ErrNoHandle = errors.New("no live connection")

// SimulatedFailure returns the synthetic connectivity error raised when failure simulation is enabled.
func SimulatedFailure(targetName string) error {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	return errors.WithMessagef(refused, "simulated database connection error or timeout for %s", targetName)
}

// Writer performs heartbeat writes for one target. It is not safe for concurrent use.
type Writer struct {
	target  target.Target
	table   string
	timeout time.Duration
	clock   clock.PassiveClock
	// The handle on which the table was last confirmed to exist
	ensuredFor Handle
}

func NewWriter(t target.Target, table string, timeout time.Duration, clock clock.PassiveClock) *Writer {
	return &Writer{
		target:  t,
		table:   table,
		timeout: timeout,
		clock:   clock,
	}
}

// WriteOnce ensures the table exists and commits one timestamped row through h.
// The returned latency covers the insert up to and including its commit. If the table
// could not be ensured, it covers the failed DDL instead.
func (w *Writer) WriteOnce(ctx context.Context, h Handle) (time.Duration, error) {
	if w.target.SimulateFailure {
		return 0, w.writeError(SimulatedFailure(w.target.Name))
	}
	if h == nil {
		return 0, w.writeError(ErrNoHandle)
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := w.clock.Now()
	if err := w.EnsureTable(ctx, h); err != nil {
		return w.clock.Since(start), w.writeError(err)
	}

	start = w.clock.Now()
	err := h.InsertHeartbeat(ctx, w.table, start)
	latency := w.clock.Since(start)
	if err != nil {
		return latency, w.writeError(err)
	}
	return latency, nil
}

// EnsureTable issues the idempotent DDL unless it has already succeeded on h.
// A new handle, e.g. after a reconnect, is confirmed again.
func (w *Writer) EnsureTable(ctx context.Context, h Handle) error {
	if h == nil {
		return ErrNoHandle
	}
	if w.ensuredFor == h {
		return nil
	}
	if err := h.EnsureTable(ctx, w.table); err != nil {
		return err
	}
	w.ensuredFor = h
	return nil
}

// InsertStatement is the statement executed by WriteOnce against h.
func (w *Writer) InsertStatement(h Handle) string {
	if h == nil {
		return ""
	}
	return h.Dialect().InsertSQL(w.table)
}

func (w *Writer) Table() string {
	return w.table
}

func (w *Writer) writeError(err error) error {
	return errors.WithStack(&dberrors.ErrWrite{Target: w.target.Name, Err: err})
}
