package observability

import (
	"strconv"
	"time"
)

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus
// globals directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Counter store metrics
	IncrementCounterOps(op, metric, outcome string)
	RecordCounterLatency(op string, duration time.Duration)

	// Event tracking metrics
	IncrementEvent(metric string)
	IncrementDroppedEvent(metric, reason string)

	// Ad selection metrics
	IncrementAdSelection(position, outcome string)

	// Report metrics
	IncrementReports(kind string, degraded bool)
	RecordReportDuration(kind string, duration time.Duration)
	SetSnapshot(totalViews int64, published int)

	// Rate limiting metrics
	IncrementRateLimitRequests(scope string)
	IncrementRateLimitHits(scope string)

	// Analytics pipeline metrics
	IncrementAnalyticsErrors(reason string)

	// Click URL macro metrics
	IncrementMacroExpansion(macro string, success bool)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementCounterOps(op, metric, outcome string) {
	CounterOps.WithLabelValues(op, metric, outcome).Inc()
}

func (r *PrometheusRegistry) RecordCounterLatency(op string, duration time.Duration) {
	CounterLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementEvent(metric string) {
	EventCount.WithLabelValues(metric).Inc()
}

func (r *PrometheusRegistry) IncrementDroppedEvent(metric, reason string) {
	DroppedEventCount.WithLabelValues(metric, reason).Inc()
}

func (r *PrometheusRegistry) IncrementAdSelection(position, outcome string) {
	AdSelections.WithLabelValues(position, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementReports(kind string, degraded bool) {
	ReportCount.WithLabelValues(kind, strconv.FormatBool(degraded)).Inc()
}

func (r *PrometheusRegistry) RecordReportDuration(kind string, duration time.Duration) {
	ReportDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) SetSnapshot(totalViews int64, published int) {
	SnapshotTotalViews.Set(float64(totalViews))
	SnapshotPublished.Set(float64(published))
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(scope string) {
	RateLimitRequests.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(scope string) {
	RateLimitHits.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors(reason string) {
	AnalyticsErrors.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementMacroExpansion(macro string, success bool) {
	MacroExpansions.WithLabelValues(macro, strconv.FormatBool(success)).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementCounterOps(op, metric, outcome string)                       {}
func (r *NoOpRegistry) RecordCounterLatency(op string, duration time.Duration)               {}
func (r *NoOpRegistry) IncrementEvent(metric string)                                         {}
func (r *NoOpRegistry) IncrementDroppedEvent(metric, reason string)                          {}
func (r *NoOpRegistry) IncrementAdSelection(position, outcome string)                        {}
func (r *NoOpRegistry) IncrementReports(kind string, degraded bool)                          {}
func (r *NoOpRegistry) RecordReportDuration(kind string, duration time.Duration)             {}
func (r *NoOpRegistry) SetSnapshot(totalViews int64, published int)                          {}
func (r *NoOpRegistry) IncrementRateLimitRequests(scope string)                              {}
func (r *NoOpRegistry) IncrementRateLimitHits(scope string)                                  {}
func (r *NoOpRegistry) IncrementAnalyticsErrors(reason string)                               {}
func (r *NoOpRegistry) IncrementMacroExpansion(macro string, success bool)                   {}
