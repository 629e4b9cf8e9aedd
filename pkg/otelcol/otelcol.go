package otelcol

import (
	"context"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewResource,
		NewTracerProvider,
		NewMeterProvider,
	),
	fx.Invoke(Register),
)

func NewResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
}

// NewTracerProvider exports spans over OTLP when OTEL.ADDR is set. Without an
// exporter spans are still created so logs carry trace and span ids.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config, res *resource.Resource) (trace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Otel.Addr != "" {
		var exporter sdktrace.SpanExporter
		var err error
		switch cfg.Otel.Protocol {
		case "grpc":
			exporter, err = exporters.ProvideGrpc(cfg)
		default:
			exporter, err = exporters.ProvideHttp(cfg)
		}
		if err != nil {
			zap.L().Error("failed to create trace exporter", zap.String("protocol", cfg.Otel.Protocol), zap.Error(err))
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

func NewMeterProvider(lc fx.Lifecycle, res *resource.Resource) metric.MeterProvider {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return mp
}

func Register(tp trace.TracerProvider, mp metric.MeterProvider) {
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
