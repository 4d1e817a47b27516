package tracing

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/configuration"
)

// NewResource describes this process to the trace backend.
func NewResource(config configuration.TracingConfig) (*resource.Resource, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	return r, errors.WithStack(err)
}

// Setup returns the observer for write attempts and a function that flushes and stops tracing.
// With tracing disabled the observer does nothing. The OTLP/gRPC exporter reads its endpoint and
// credentials from the standard OTEL_EXPORTER_OTLP_* environment variables.
func Setup(ctx context.Context, config configuration.TracingConfig) (Observer, func(context.Context) error, error) {
	if !config.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return NoopObserver{}, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating otlp trace exporter")
	}
	r, err := NewResource(config)
	if err != nil {
		return nil, nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(provider)
	log.Infof("Tracing enabled for service %s", config.ServiceName)

	shutdown := func(ctx context.Context) error {
		return errors.WithStack(provider.Shutdown(ctx))
	}
	return NewSpanObserver(provider), shutdown, nil
}
