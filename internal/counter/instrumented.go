package counter

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/observability"
)

var tracer = observability.Tracer("counter")

// Instrumented wraps a Store with tracing spans and Prometheus metrics.
type Instrumented struct {
	next    Store
	metrics observability.MetricsRegistry
}

// NewInstrumented decorates next. A nil metrics registry disables metrics.
func NewInstrumented(next Store, metrics observability.MetricsRegistry) *Instrumented {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Instrumented{next: next, metrics: metrics}
}

func (i *Instrumented) Increment(ctx context.Context, entityID string, metric models.Metric, delta int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "counter.Increment", trace.WithAttributes(
		attribute.String("entity_id", entityID),
		attribute.String("metric", string(metric)),
		attribute.Int64("delta", delta),
	))
	defer span.End()

	start := time.Now()
	v, err := i.next.Increment(ctx, entityID, metric, delta)
	i.observe(span, "increment", metric, start, err)
	return v, err
}

func (i *Instrumented) Read(ctx context.Context, entityID string, metric models.Metric) (int64, error) {
	ctx, span := tracer.Start(ctx, "counter.Read", trace.WithAttributes(
		attribute.String("entity_id", entityID),
		attribute.String("metric", string(metric)),
	))
	defer span.End()

	start := time.Now()
	v, err := i.next.Read(ctx, entityID, metric)
	i.observe(span, "read", metric, start, err)
	return v, err
}

func (i *Instrumented) ReadMany(ctx context.Context, entityIDs []string, metric models.Metric) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "counter.ReadMany", trace.WithAttributes(
		attribute.Int("keys", len(entityIDs)),
		attribute.String("metric", string(metric)),
	))
	defer span.End()

	start := time.Now()
	v, err := i.next.ReadMany(ctx, entityIDs, metric)
	i.observe(span, "read_many", metric, start, err)
	return v, err
}

func (i *Instrumented) observe(span trace.Span, op string, metric models.Metric, start time.Time, err error) {
	i.metrics.RecordCounterLatency(op, time.Since(start))
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrStoreUnavailable):
		outcome = "unavailable"
	case errors.Is(err, ErrInvalidCommand):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	i.metrics.IncrementCounterOps(op, string(metric), outcome)
}
