package reporting

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/observability"
)

// Snapshotter periodically builds the all-time report and publishes its
// headline numbers as gauges and a log line.
type Snapshotter struct {
	agg     *Aggregator
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	timeout time.Duration
	cron    *rcron.Cron
}

// NewSnapshotter schedules snapshots with a six-field cron spec (seconds
// first), e.g. "0 */5 * * * *".
func NewSnapshotter(agg *Aggregator, schedule string, timeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) (*Snapshotter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Snapshotter{
		agg:     agg,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
		cron:    rcron.New(rcron.WithSeconds()),
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce builds one snapshot immediately.
func (s *Snapshotter) RunOnce(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.agg.BuildReport(ctx, WindowAll, DefaultTopN)
	if err != nil {
		s.logger.Error("report snapshot failed", zap.Error(err))
		return nil, err
	}
	s.metrics.SetSnapshot(report.TotalViews, report.PublishedCount)

	fields := []zap.Field{
		zap.Int64("total_views", report.TotalViews),
		zap.Int("published", report.PublishedCount),
		zap.Float64("avg_views_per_post", report.AvgViewsPerPost),
		zap.Bool("degraded", report.Degraded),
	}
	if len(report.TopN) > 0 {
		fields = append(fields, zap.String("top_post", report.TopN[0].ID), zap.Int64("top_post_views", report.TopN[0].Views))
	}
	if report.Degraded {
		fields = append(fields, zap.Strings("omitted", report.Omitted))
	}
	s.logger.Info("report snapshot", fields...)
	return report, nil
}

// Start begins the schedule.
func (s *Snapshotter) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running snapshot to finish.
func (s *Snapshotter) Stop() {
	<-s.cron.Stop().Done()
}
