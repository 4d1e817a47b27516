package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/connection"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/healthcheck"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/metrics"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

// newTestServer serves alpha, which is connected to a sqlite database, and beta, which is unreachable.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder("test_")
	require.NoError(t, recorder.Register(registry, []string{"alpha", "beta"}))
	classifier, err := outcome.NewHeuristicClassifier(nil)
	require.NoError(t, err)

	newManager := func(tgt target.Target, connector store.Connector) *connection.Manager {
		return connection.NewManager(tgt, connector, classifier, recorder, clock.RealClock{}, connection.Options{Retries: 1})
	}
	alpha := newManager(
		target.Target{Name: "alpha", Driver: target.DriverSQLite, Database: filepath.Join(t.TempDir(), "alpha.db")},
		store.NewDriverConnector(time.Second, time.Second))
	_, err = alpha.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { alpha.Invalidate(context.Background()) })
	beta := newManager(
		target.Target{Name: "beta", Driver: target.DriverPgx, Host: "db", Database: "timestamp"},
		store.ConnectorFunc(func(context.Context, target.Target) (store.Handle, error) { return nil, syscall.ECONNREFUSED }))

	srv := httptest.NewServer(NewMux(healthcheck.NewReporter(time.Second, alpha, beta), registry))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIndex(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "dbheartbeat is running and writing timestamps to 2 database(s). Check /metrics for Prometheus data.\n", body)

	resp, _ = get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	tests := map[string]struct {
		path           string
		expectedStatus int
		expectedBody   healthcheck.Response
	}{
		"all targets": {
			path:           "/health",
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   healthcheck.Response{Status: "unhealthy", DatabaseConnection: "beta: engine not initialized"},
		},
		"healthy target": {
			path:           "/health/alpha",
			expectedStatus: http.StatusOK,
			expectedBody:   healthcheck.Response{Status: "healthy", DatabaseConnection: "successful"},
		},
		"unhealthy target": {
			path:           "/health/beta",
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   healthcheck.Response{Status: "unhealthy", DatabaseConnection: "beta: engine not initialized"},
		},
		"unknown target": {
			path:           "/health/gamma",
			expectedStatus: http.StatusNotFound,
			expectedBody:   healthcheck.Response{Status: "unhealthy", DatabaseConnection: `unknown target "gamma"`},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			resp, body := get(t, srv, tc.path)

			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			var decoded healthcheck.Response
			require.NoError(t, json.Unmarshal([]byte(body), &decoded))
			assert.Equal(t, tc.expectedBody, decoded)
		})
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain; version=0.0.4")
	assert.Contains(t, body, `test_write_success_total{target="alpha"} 0`)
	assert.Contains(t, body, `test_write_failure_total{target="beta"} 0`)
	assert.Contains(t, body, `test_engine_ready{target="alpha"} 1`)
}

func TestStatsIsRetired(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/stats")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Please use /metrics for machine-readable statistics.\n", body)
}
