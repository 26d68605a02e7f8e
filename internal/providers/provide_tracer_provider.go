package providers

import (
	"context"
	"strings"

	"github.com/gbdevw/gowaithook/internal/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Provide the tracer provider. When tracing is enabled, spans are exported to the OTLP HTTP
// endpoint and flushed when the application stops. Otherwise the global provider is returned.
func ProvideTracerProvider(lc fx.Lifecycle, ctx context.Context, config configuration.Configuration) (trace.TracerProvider, error) {
	if strings.ToLower(config.TracingEnabled) != "true" && config.TracingEnabled != "1" {
		return otel.GetTracerProvider(), nil
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if config.TracingEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.TracingEndpoint))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("waithook"),
		)),
	)
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
