// Package tracing wires OpenTelemetry spans around trials and poll sessions.
package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/spachava753/convergence/internal/models"
)

const instrumentationName = "github.com/spachava753/convergence"

// Init installs the global tracer provider for a run and returns the function
// that flushes it. Without an endpoint every span is a no-op.
func Init(ctx context.Context, service string, cfg models.TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp, err := newProvider(ctx, service, exporter)
	if err != nil {
		return nil, errors.Join(err, exporter.Shutdown(ctx))
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg models.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting trace exporter to %s: %w", cfg.Endpoint, err)
	}
	return exporter, nil
}

// newProvider batches spans into exporter, tagged with the service name.
func newProvider(ctx context.Context, service string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return nil, fmt.Errorf("describing trace resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartTrial opens the span that covers one trial, from the first write
// until classification.
func StartTrial(ctx context.Context, scenario string, iteration int, key string) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, "trial",
		trace.WithAttributes(
			attribute.String("scenario.name", scenario),
			attribute.Int("trial.iteration", iteration),
			attribute.String("object.key", key),
		),
	)
}

// StartPoll opens the span that covers one poll session.
func StartPoll(ctx context.Context, predicate string, targets int) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, "poll",
		trace.WithAttributes(
			attribute.String("poll.predicate", predicate),
			attribute.Int("poll.targets", targets),
		),
	)
}
