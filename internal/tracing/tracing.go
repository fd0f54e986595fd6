// Package tracing installs the OpenTelemetry trace provider and offers
// small helpers for the request path. When Init is never called (or tracing
// is disabled) the global provider stays a no-op and span helpers cost
// nothing at the call sites.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/tollgate"

// Config holds OTLP/HTTP export settings.
type Config struct {
	// Enabled turns span export on.
	Enabled bool

	// Endpoint is the collector endpoint (host:port). Empty uses the
	// exporter default.
	Endpoint string

	// ServiceName overrides the reported service name. Defaults to tollgate.
	ServiceName string

	// Insecure disables TLS towards the collector.
	Insecure bool
}

var (
	initOnce sync.Once
	initErr  error
	shutdown func(context.Context) error
)

// Init installs the global tracer provider backed by an OTLP/HTTP exporter.
// Safe to call multiple times; the first successful initialisation wins.
// The returned shutdown func flushes pending spans.
func Init(ctx context.Context, cfg Config, version string) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	initOnce.Do(func() {
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}

		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			initErr = err
			return
		}

		name := cfg.ServiceName
		if name == "" {
			name = "tollgate"
		}

		res, err := resource.New(ctx,
			resource.WithAttributes(
				attribute.String("service.name", name),
				attribute.String("service.version", version),
			),
		)
		if err != nil {
			initErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdown = tp.Shutdown
	})

	if initErr != nil {
		return nil, initErr
	}
	if shutdown == nil {
		return noopShutdown, nil
	}
	return shutdown, nil
}

// Start opens a span on the global tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes the span, recording err as its status when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
