// Package otel wires OpenTelemetry tracing for service entry points.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/openclock/worklog/internal/platform/config"
)

// Settings control trace export. Tracing is opt-in: with no endpoint
// configured, or when explicitly disabled, no global provider is
// registered.
type Settings struct {
	Endpoint string `env:"WORKLOG_OTEL_ENDPOINT"`
	Enabled  bool   `env:"WORKLOG_OTEL_ENABLED" envDefault:"true"`
}

func noopShutdown(context.Context) error { return nil }

// Setup reads Settings from the environment and, when tracing is enabled,
// registers a global tracer provider exporting OTLP over HTTP. The returned
// shutdown function flushes pending spans and should be deferred.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	var settings Settings
	if err := config.ParseEnv(&settings); err != nil {
		return noopShutdown, err
	}
	if !settings.Enabled || settings.Endpoint == "" {
		return noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(settings.Endpoint))
	if err != nil {
		return noopShutdown, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return noopShutdown, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}
