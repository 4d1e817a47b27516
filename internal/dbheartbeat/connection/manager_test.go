package connection

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/metrics"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

var alpha = target.Target{Name: "alpha", Driver: target.DriverPgx, Host: "db", Port: 5432, Database: "timestamp"}

type fakeHandle struct {
	store.SQLHandle
	mutex  sync.Mutex
	closed bool
}

func (h *fakeHandle) Close(_ context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.closed
}

// scriptedConnector fails the first failures calls and succeeds afterwards.
type scriptedConnector struct {
	failures int
	err      error
	calls    int
	handles  []*fakeHandle
}

func (c *scriptedConnector) Connect(_ context.Context, _ target.Target) (store.Handle, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	h := &fakeHandle{}
	c.handles = append(c.handles, h)
	return h, nil
}

type testRecorder struct {
	*metrics.Recorder
	registry *prometheus.Registry
}

func newManager(t *testing.T, connector store.Connector, retries uint) (*Manager, *testRecorder) {
	t.Helper()
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder("test_")
	require.NoError(t, recorder.Register(registry, []string{alpha.Name}))
	classifier, err := outcome.NewHeuristicClassifier(nil)
	require.NoError(t, err)
	m := NewManager(alpha, connector, classifier, recorder, clock.NewFakeClock(time.Now()), Options{
		Retries:    retries,
		RetryDelay: time.Millisecond,
	})
	return m, &testRecorder{Recorder: recorder, registry: registry}
}

func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			require.Len(t, family.GetMetric(), 1)
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestManager_ExhaustedRetriesLeaveTargetDegraded(t *testing.T) {
	connector := &scriptedConnector{failures: 5, err: syscall.ECONNREFUSED}
	manager, recorder := newManager(t, connector, 5)

	handle, err := manager.Connect(context.Background())

	require.Error(t, err)
	assert.Nil(t, handle)
	assert.Nil(t, manager.Current())
	assert.Equal(t, 5, connector.calls)
	var maxRetries *dberrors.ErrMaxRetriesExceeded
	require.True(t, errors.As(err, &maxRetries))
	assert.Equal(t, uint(5), maxRetries.Attempts)
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
	assert.Equal(t, err, manager.LastError())
	assert.Equal(t, 0.0, gaugeValue(t, recorder.registry, "test_engines_ready"))

	count, err := testutil.GatherAndCount(recorder.registry, "test_connect_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_SucceedsOnNextConnectAfterExhaustion(t *testing.T) {
	connector := &scriptedConnector{failures: 5, err: syscall.ECONNREFUSED}
	manager, recorder := newManager(t, connector, 5)

	_, err := manager.Connect(context.Background())
	require.Error(t, err)

	handle, err := manager.Connect(context.Background())

	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Same(t, connector.handles[0], handle)
	assert.Same(t, handle, manager.Current())
	assert.NoError(t, manager.LastError())
	assert.Equal(t, 6, connector.calls)
	assert.Equal(t, 1.0, gaugeValue(t, recorder.registry, "test_engines_ready"))
}

func TestManager_RetriesWithinBudget(t *testing.T) {
	connector := &scriptedConnector{failures: 2, err: errors.New("authentication failed")}
	manager, _ := newManager(t, connector, 5)

	handle, err := manager.Connect(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, handle)
	assert.Equal(t, 3, connector.calls)
}

func TestManager_EveryAttemptIsRecorded(t *testing.T) {
	connector := &scriptedConnector{failures: 2, err: syscall.ECONNREFUSED}
	manager, recorder := newManager(t, connector, 5)

	_, err := manager.Connect(context.Background())
	require.NoError(t, err)

	expected := `
# HELP test_connect_attempts_total Database connection attempts by outcome
# TYPE test_connect_attempts_total counter
test_connect_attempts_total{is_timeout="false",status="failure",target="alpha"} 0
test_connect_attempts_total{is_timeout="false",status="success",target="alpha"} 1
test_connect_attempts_total{is_timeout="true",status="failure",target="alpha"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.registry, strings.NewReader(expected), "test_connect_attempts_total"))
}

func TestManager_InvalidateClosesHandle(t *testing.T) {
	connector := &scriptedConnector{}
	manager, recorder := newManager(t, connector, 1)
	_, err := manager.Connect(context.Background())
	require.NoError(t, err)

	manager.Invalidate(context.Background())

	assert.Nil(t, manager.Current())
	assert.True(t, connector.handles[0].isClosed())
	assert.Equal(t, 0.0, gaugeValue(t, recorder.registry, "test_engines_ready"))

	// Invalidating again is a no-op
	manager.Invalidate(context.Background())
}

func TestManager_ConnectReplacesExistingHandle(t *testing.T) {
	connector := &scriptedConnector{}
	manager, _ := newManager(t, connector, 1)

	first, err := manager.Connect(context.Background())
	require.NoError(t, err)
	second, err := manager.Connect(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, connector.handles[0].isClosed())
	assert.False(t, connector.handles[1].isClosed())
}

func TestManager_CancelledContextStopsRetrying(t *testing.T) {
	connector := &scriptedConnector{failures: 100, err: syscall.ECONNREFUSED}
	manager, _ := newManager(t, connector, 100)
	manager.options.RetryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		_, err := manager.Connect(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return after cancellation")
	}
	assert.Nil(t, manager.Current())
}
