/*
Package telemetry sets up OpenTelemetry export and holds the instruments the controller records sessions with.

Nothing here is required: with no endpoint configured the global providers stay as no-ops and
the instruments still accept measurements.
*/
package telemetry

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ScopeName is the instrumentation scope used for the meter and tracer
const ScopeName = "github.com/Redundancy/go-scan"

// Config for exporting telemetry
type Config struct {
	// host:port of an OTLP gRPC collector. Empty disables export.
	Endpoint    string
	ServiceName string
	// How often metrics are pushed, 10s if zero
	Interval time.Duration
}

// ShutdownFunc flushes and stops the exporters
type ShutdownFunc func(context.Context) error

func noShutdown(context.Context) error { return nil }

// Init installs global tracer and meter providers exporting to cfg.Endpoint.
// A failure to create an exporter is logged and leaves the no-op providers in place.
func Init(ctx context.Context, cfg Config, logger hclog.Logger) ShutdownFunc {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	log := logger.Named("telemetry")

	otel.SetTextMapPropagator(propagation.TraceContext{})

	if cfg.Endpoint == "" {
		log.Debug("no telemetry endpoint configured")
		return noShutdown
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "goscan"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		log.Warn("could not build telemetry resource", "error", err)
		res = resource.Default()
	}

	dial := grpc.WithTransportCredentials(insecure.NewCredentials())

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	traceExporter, err := otlptracegrpc.New(initCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dial),
	)
	if err != nil {
		log.Warn("trace exporter init failed", "endpoint", cfg.Endpoint, "error", err)
		return noShutdown
	}

	metricExporter, err := otlpmetricgrpc.New(initCtx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(dial),
	)
	if err != nil {
		log.Warn("metric exporter init failed", "endpoint", cfg.Endpoint, "error", err)
		_ = traceExporter.Shutdown(ctx)
		return noShutdown
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	log.Info("telemetry initialized", "endpoint", cfg.Endpoint)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		traceErr := tp.Shutdown(ctx)
		if err := mp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "shutting down meter provider")
		}
		return errors.Wrap(traceErr, "shutting down tracer provider")
	}
}

// Tracer returns the tracer for sessions, from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(ScopeName)
}
