package dbheartbeat

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/dbheartbeat/internal/common"
	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
	"github.com/G-Research/dbheartbeat/internal/common/hbcontext"
	"github.com/G-Research/dbheartbeat/internal/common/logging"
	"github.com/G-Research/dbheartbeat/internal/common/task"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/configuration"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/connection"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/healthcheck"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/metrics"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/scheduler"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/server"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/tracing"
)

const (
	stopTimeout            = 30 * time.Second
	tracingShutdownTimeout = 5 * time.Second
)

type App struct {
	config     *configuration.DbHeartbeatConfig
	targets    *target.Registry
	classifier outcome.Classifier
	recorder   *metrics.Recorder
	managers   []*connection.Manager
	writers    []*store.Writer
	reporter   *healthcheck.Reporter

	connector  store.Connector
	clock      clock.Clock
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

type Option func(*App)

// WithRegistry replaces the default prometheus registry.
func WithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(a *App) {
		a.registerer = registerer
		a.gatherer = gatherer
	}
}

func WithConnector(connector store.Connector) Option {
	return func(a *App) {
		a.connector = connector
	}
}

func WithClock(clock clock.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// New builds every component for the configured targets and registers their metric series at zero.
// No database is contacted.
func New(config *configuration.DbHeartbeatConfig, options ...Option) (*App, error) {
	a := &App{
		config:     config,
		clock:      clock.RealClock{},
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, option := range options {
		option(a)
	}
	if a.connector == nil {
		a.connector = store.NewDriverConnector(config.Connection.ConnectTimeout, config.Connection.WriteTimeout)
	}

	targets, err := target.NewRegistry(config.Targets...)
	if err != nil {
		return nil, errors.WithStack(&dberrors.ErrConfig{Name: "Targets", Message: err.Error()})
	}
	a.targets = targets
	log.Debugf("Configured targets:\n%s", target.Dump(targets.Targets()...))

	classifier, err := outcome.NewHeuristicClassifier(config.TimeoutErrorPatterns)
	if err != nil {
		return nil, errors.WithStack(&dberrors.ErrConfig{Name: "TimeoutErrorPatterns", Message: err.Error()})
	}
	a.classifier = classifier

	a.recorder = metrics.NewRecorder(config.MetricsPrefix)
	if err := a.recorder.Register(a.registerer, targets.Names()); err != nil {
		return nil, err
	}

	for _, t := range targets.Targets() {
		a.managers = append(a.managers, connection.NewManager(t, a.connector, a.classifier, a.recorder, a.clock, connection.Options{
			Retries:    config.Connection.Retries,
			RetryDelay: config.Connection.RetryDelay,
		}))
		a.writers = append(a.writers, store.NewWriter(t, config.Connection.TableName, config.Connection.WriteTimeout, a.clock))
	}
	a.reporter = healthcheck.NewReporter(config.Connection.ProbeTimeout, a.managers...)
	return a, nil
}

func (a *App) Reporter() *healthcheck.Reporter {
	return a.reporter
}

// Run serves HTTP and drives one heartbeat loop per target until ctx is cancelled.
// Database failures never end Run; only a failed listener does.
func (a *App) Run(ctx context.Context) error {
	hbctx := hbcontext.New(ctx, log.WithField("service", "dbheartbeat"))

	observer, shutdownTracing, err := tracing.Setup(hbctx, a.config.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logging.WithStacktrace(hbctx.Log, err).Warn("Error flushing traces")
		}
	}()

	workers := make([]*scheduler.Worker, 0, len(a.managers))
	for i, m := range a.managers {
		workers = append(workers, scheduler.NewWorker(m, a.writers[i], a.classifier, a.recorder, observer))
	}
	taskManager := task.NewBackgroundTaskManager(a.config.MetricsPrefix, a.registerer, a.clock)
	heartbeats := scheduler.NewScheduler(taskManager, a.config.WriteInterval, workers...)

	g, gctx := hbcontext.ErrGroup(hbctx)
	g.Go(func() error {
		return common.ServeHttp(gctx, a.config.HttpPort, server.NewMux(a.reporter, a.gatherer))
	})
	if a.config.MetricsPort != 0 && a.config.MetricsPort != a.config.HttpPort {
		g.Go(func() error {
			return common.ServeMetricsFor(gctx, a.config.MetricsPort, a.gatherer)
		})
	}
	g.Go(func() error {
		hbctx.Log.Infof("Writing heartbeats to %d target(s): %v", a.targets.Len(), a.targets.Names())
		heartbeats.Start(gctx)
		<-gctx.Done()
		if heartbeats.Stop(stopTimeout) {
			hbctx.Log.Warnf("Heartbeat loops did not stop within %s", stopTimeout)
		}
		a.closeAll(hbctx)
		return nil
	})
	return g.Wait()
}

// EnsureSchema connects to every target and creates the heartbeat table. All targets are attempted
// and the failures are returned together.
func (a *App) EnsureSchema(ctx context.Context) error {
	hbctx := hbcontext.New(ctx, log.WithField("command", "ensure-schema"))
	defer a.closeAll(hbctx)

	var result *multierror.Error
	for i, m := range a.managers {
		tctx := hbcontext.WithLogField(hbctx, "target", m.Target().Name)
		handle, err := m.Connect(tctx)
		if err == nil {
			err = a.writers[i].EnsureTable(tctx, handle)
		}
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "ensuring table on %s", m.Target().Name))
			continue
		}
		tctx.Log.Infof("Table %s is present", a.writers[i].Table())
	}
	return result.ErrorOrNil()
}

// Check connects to every target once and probes it. It returns nil only if every target is healthy.
func (a *App) Check(ctx context.Context) error {
	hbctx := hbcontext.New(ctx, log.WithField("command", "check"))
	defer a.closeAll(hbctx)

	for _, m := range a.managers {
		tctx := hbcontext.WithLogField(hbctx, "target", m.Target().Name)
		if _, err := m.Connect(tctx); err != nil {
			logging.WithStacktrace(tctx.Log, err).Debug("Connect failed")
		}
	}
	if err := a.reporter.Check(); err != nil {
		return err
	}
	hbctx.Log.Infof("All %d target(s) healthy", a.targets.Len())
	return nil
}

func (a *App) closeAll(ctx *hbcontext.Context) {
	for _, m := range a.managers {
		m.Invalidate(ctx)
	}
}
