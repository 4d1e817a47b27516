package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
	"github.com/G-Research/dbheartbeat/internal/common/hbcontext"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

const closeTimeout = 5 * time.Second

// Recorder receives connect attempt outcomes and readiness changes.
type Recorder interface {
	RecordConnect(o outcome.Outcome)
	SetReady(target string, ready bool)
}

type Options struct {
	// Connect attempts made per call to Connect
	Retries    uint
	RetryDelay time.Duration
}

// Manager owns the single live handle for one target. The write loop for the target is the only
// caller of Connect and Invalidate; any goroutine may call Current.
type Manager struct {
	target     target.Target
	connector  store.Connector
	classifier outcome.Classifier
	recorder   Recorder
	clock      clock.PassiveClock
	options    Options

	mutex   sync.RWMutex
	handle  store.Handle
	lastErr error
}

func NewManager(
	t target.Target,
	connector store.Connector,
	classifier outcome.Classifier,
	recorder Recorder,
	clock clock.PassiveClock,
	options Options,
) *Manager {
	if options.Retries == 0 {
		options.Retries = 1
	}
	return &Manager{
		target:     t,
		connector:  connector,
		classifier: classifier,
		recorder:   recorder,
		clock:      clock,
		options:    options,
	}
}

func (m *Manager) Target() target.Target {
	return m.target
}

// Current returns the live handle, or nil if the target is not connected.
func (m *Manager) Current() store.Handle {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.handle
}

// LastError returns the error from the most recent failed connect, or nil if the last connect succeeded.
func (m *Manager) LastError() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastErr
}

// Connect discards any existing handle and makes up to Retries attempts, a fixed RetryDelay apart,
// to open a new one. Every attempt is recorded. Running out of attempts leaves the target without a
// handle and returns *dberrors.ErrMaxRetriesExceeded; the caller decides when to try again.
func (m *Manager) Connect(ctx context.Context) (store.Handle, error) {
	log := hbcontext.FromContext(ctx).Log.WithField("target", m.target.Name)
	m.Invalidate(ctx)

	var handle store.Handle
	attempt := func() error {
		log.Infof("Attempting to connect to database %s", m.target)
		start := m.clock.Now()
		h, err := m.connector.Connect(ctx, m.target)
		m.recorder.RecordConnect(outcome.Outcome{
			Target:  m.target.Name,
			Kind:    m.classifier.Classify(err),
			Latency: m.clock.Since(start),
			Err:     err,
		})
		if err != nil {
			return &dberrors.ErrConnect{Target: m.target.Name, Err: err}
		}
		handle = h
		return nil
	}

	err := retry.Do(
		attempt,
		retry.Attempts(m.options.Retries),
		retry.Delay(m.options.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			left := m.options.Retries - n - 1
			entry := logging.WithStacktrace(log, err)
			if left > 0 {
				entry.Warnf("Error connecting to database, retrying in %s (%d attempts left)", m.options.RetryDelay, left)
			} else {
				entry.Error("Error connecting to database, no attempts left")
			}
		}),
	)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		m.lastErr = errors.WithStack(ctxErr)
		m.recorder.SetReady(m.target.Name, false)
		return nil, m.lastErr
	}
	if err != nil {
		m.lastErr = errors.WithStack(&dberrors.ErrMaxRetriesExceeded{
			Message:   fmt.Sprintf("connecting to target %s", m.target.Name),
			Attempts:  m.options.Retries,
			LastError: err,
		})
		m.recorder.SetReady(m.target.Name, false)
		log.Errorf("Failed to connect to database after %d attempts, target is degraded until the next write", m.options.Retries)
		return nil, m.lastErr
	}
	m.handle = handle
	m.lastErr = nil
	m.recorder.SetReady(m.target.Name, true)
	log.Info("Database connection established successfully")
	return handle, nil
}

// Invalidate drops and closes the current handle, if any.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mutex.Lock()
	old := m.handle
	m.handle = nil
	m.mutex.Unlock()
	if old == nil {
		return
	}
	m.recorder.SetReady(m.target.Name, false)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := old.Close(closeCtx); err != nil {
		logging.WithStacktrace(hbcontext.FromContext(ctx).Log.WithField("target", m.target.Name), err).
			Debug("Error closing invalidated database connection")
	}
}
