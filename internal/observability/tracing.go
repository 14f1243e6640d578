package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig selects where spans go and how many are kept.
type TracingConfig struct {
	ServiceName string
	Version     string
	Environment string
	Endpoint    string  // OTLP gRPC collector, host:port
	SampleRate  float64 // 0 drops everything, >= 1 keeps everything
}

// InitTracing installs a global OTLP tracer provider and W3C propagation.
// The returned func flushes pending spans.
func InitTracing(ctx context.Context, logger *zap.Logger, cfg TracingConfig) (func(), error) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	// Empty schema URL so the resource merges cleanly with the SDK default.
	res := resource.NewWithAttributes("",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
		attribute.String("environment", cfg.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("tracer provider shutdown", zap.Error(err))
		}
	}, nil
}

// samplerFor keeps sampling decisions consistent across a trace by honouring
// the parent's decision.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns the tracer for a component, named under the module path so
// spans from different packages group together.
func Tracer(component string) trace.Tracer {
	return otel.Tracer("github.com/patrickwarner/portalmetrics/" + component)
}
