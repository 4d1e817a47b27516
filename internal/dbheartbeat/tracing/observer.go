package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

const (
	instrumentationName = "github.com/G-Research/dbheartbeat"
	writeSpanName       = "db_write"

	TimeoutKey = attribute.Key("db.timeout")
	TargetKey  = attribute.Key("db.target")
)

// EndFunc completes an attempt started by an Observer.
type EndFunc func(kind outcome.Kind, err error)

// Observer is notified at the start and end of every write attempt.
type Observer interface {
	StartAttempt(ctx context.Context, t target.Target, statement string) (context.Context, EndFunc)
}

type NoopObserver struct{}

func (NoopObserver) StartAttempt(ctx context.Context, _ target.Target, _ string) (context.Context, EndFunc) {
	return ctx, func(outcome.Kind, error) {}
}

// SpanObserver wraps each write attempt in a client span carrying database semantic attributes.
type SpanObserver struct {
	tracer trace.Tracer
}

func NewSpanObserver(provider trace.TracerProvider) *SpanObserver {
	return &SpanObserver{tracer: provider.Tracer(instrumentationName)}
}

func (o *SpanObserver) StartAttempt(ctx context.Context, t target.Target, statement string) (context.Context, EndFunc) {
	attributes := []attribute.KeyValue{
		dbSystem(t.Driver),
		semconv.DBNameKey.String(t.Database),
		semconv.DBOperationKey.String("INSERT"),
		TargetKey.String(t.Name),
	}
	if statement != "" {
		attributes = append(attributes, semconv.DBStatementKey.String(statement))
	}
	if t.Host != "" {
		attributes = append(attributes, semconv.NetPeerNameKey.String(t.Host), semconv.NetPeerPortKey.Int(int(t.Port)))
	}

	ctx, span := o.tracer.Start(ctx, writeSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attributes...))

	return ctx, func(kind outcome.Kind, err error) {
		defer span.End()
		if kind.IsTimeout() {
			span.SetAttributes(TimeoutKey.Bool(true))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

func dbSystem(driver string) attribute.KeyValue {
	switch driver {
	case target.DriverMySQL:
		return semconv.DBSystemMySQL
	case target.DriverSQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemPostgreSQL
	}
}
