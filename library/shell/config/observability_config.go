package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ObservabilityProviders holds the OpenTelemetry providers of the service.
// A provider is nil when its endpoint is not configured.
type ObservabilityProviders struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Resource       *resource.Resource
}

// Enabled reports whether at least one exporter is configured.
func (p *ObservabilityProviders) Enabled() bool {
	return p.TracerProvider != nil || p.MeterProvider != nil
}

// NewObservabilityProviders creates OpenTelemetry providers that export via OTLP gRPC
// to the endpoints from cfg and registers them globally.
func NewObservabilityProviders(ctx context.Context, cfg Config, serviceVersion string) (*ObservabilityProviders, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	providers := &ObservabilityProviders{Resource: res}

	if cfg.OTLPTracesEndpoint != "" {
		traceExporter, exporterErr := otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPTracesEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exporterErr != nil {
			return nil, exporterErr
		}

		providers.TracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(traceExporter),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(providers.TracerProvider)
	}

	if cfg.OTLPMetricsEndpoint != "" {
		metricExporter, exporterErr := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPMetricsEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if exporterErr != nil {
			return nil, errors.Join(exporterErr, providers.Shutdown(ctx))
		}

		providers.MeterProvider = metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(5*time.Second))),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(providers.MeterProvider)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	return providers, nil
}

// Shutdown flushes and stops the configured providers.
func (p *ObservabilityProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}

	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
