package healthcheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/dbheartbeat/internal/common/health"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/connection"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/store"
)

const (
	StatusHealthy      = "healthy"
	StatusUnhealthy    = "unhealthy"
	ConnectionHealthy  = "successful"
	notInitialisedText = "engine not initialized"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status             string `json:"status"`
	DatabaseConnection string `json:"database_connection"`
}

// ErrUnhealthy reports why one target failed its health check.
type ErrUnhealthy struct {
	Target string
	Reason string
}

func (e *ErrUnhealthy) Error() string {
	return fmt.Sprintf("%s: %s", e.Target, e.Reason)
}

type ErrUnknownTarget struct {
	Target string
}

func (e *ErrUnknownTarget) Error() string {
	return fmt.Sprintf("unknown target %q", e.Target)
}

// Reporter answers health queries from the connection managers' current state. It never connects
// or reconnects; a target without a live handle is reported unhealthy until its write loop recovers it.
// A handle whose session is busy with a write is reported healthy, since the write records its own failure.
type Reporter struct {
	managers     map[string]*connection.Manager
	order        []string
	probeTimeout time.Duration
	all          *health.MultiChecker
}

func NewReporter(probeTimeout time.Duration, managers ...*connection.Manager) *Reporter {
	r := &Reporter{
		managers:     make(map[string]*connection.Manager, len(managers)),
		order:        make([]string, 0, len(managers)),
		probeTimeout: probeTimeout,
		all:          health.NewMultiChecker(),
	}
	for _, m := range managers {
		name := m.Target().Name
		r.managers[name] = m
		r.order = append(r.order, name)
	}
	for _, name := range r.order {
		checker, _ := r.CheckerFor(name)
		r.all.Add(checker)
	}
	return r
}

// Check reports every target, returning nil if all are healthy and otherwise a *multierror.Error
// with one *ErrUnhealthy per failing target.
func (r *Reporter) Check() error {
	return r.all.Check()
}

// CheckTarget reports a single target.
func (r *Reporter) CheckTarget(ctx context.Context, name string) error {
	m, ok := r.managers[name]
	if !ok {
		return errors.WithStack(&ErrUnknownTarget{Target: name})
	}
	return r.check(ctx, m)
}

// CheckerFor adapts CheckTarget to a health.Checker.
func (r *Reporter) CheckerFor(name string) (health.Checker, bool) {
	if _, ok := r.managers[name]; !ok {
		return nil, false
	}
	return health.CheckerFunc(func() error {
		return r.CheckTarget(context.Background(), name)
	}), true
}

func (r *Reporter) Targets() []string {
	return append([]string(nil), r.order...)
}

func (r *Reporter) check(ctx context.Context, m *connection.Manager) error {
	name := m.Target().Name
	handle := m.Current()
	if handle == nil {
		reason := notInitialisedText
		if lastErr := m.LastError(); lastErr != nil {
			reason = fmt.Sprintf("%s: %v", reason, lastErr)
		}
		return &ErrUnhealthy{Target: name, Reason: reason}
	}

	if r.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.probeTimeout)
		defer cancel()
	}
	err := handle.Ping(ctx)
	if errors.Is(err, store.ErrSessionBusy) {
		return nil
	}
	if err != nil {
		return &ErrUnhealthy{Target: name, Reason: "failed: " + err.Error()}
	}
	return nil
}

// Render is the health.RenderFunc for Reporter results.
func Render(err error) interface{} {
	if err == nil {
		return Response{Status: StatusHealthy, DatabaseConnection: ConnectionHealthy}
	}
	return Response{Status: StatusUnhealthy, DatabaseConnection: Reason(err)}
}

// Reason flattens err into the text reported in the database_connection field. Per-target
// failures are joined with "; " in target order.
func Reason(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		reasons := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			reasons = append(reasons, e.Error())
		}
		return strings.Join(reasons, "; ")
	}
	return err.Error()
}
