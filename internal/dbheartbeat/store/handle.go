package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

// Handle is a live session bound to one target. It is owned by a single writer; concurrent readers
// may only call Ping.
// ErrSessionBusy is returned by Ping when the handle's single session is running another statement.
var ErrSessionBusy = errors.New("database session busy")

type Handle interface {
	// EnsureTable creates the heartbeat table if it does not already exist.
	EnsureTable(ctx context.Context, table string) error
	// InsertHeartbeat commits a single row recording at, or returns an error with nothing committed.
	InsertHeartbeat(ctx context.Context, table string, at time.Time) error
	// LatestHeartbeat returns the most recently inserted timestamp; ok is false if the table is empty.
	LatestHeartbeat(ctx context.Context, table string) (at time.Time, ok bool, err error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Dialect() Dialect
}

// Connector opens new handles.
type Connector interface {
	Connect(ctx context.Context, t target.Target) (Handle, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context, t target.Target) (Handle, error)

func (f ConnectorFunc) Connect(ctx context.Context, t target.Target) (Handle, error) {
	return f(ctx, t)
}
