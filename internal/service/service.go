// Package service is the Go API of the usage-counting subsystem. The HTTP
// handlers, the MCP server and the CLI all go through it.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	logic "github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/logic/selectors"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
)

// Deps are the collaborators of a Service. Events and ViewLimiter are optional.
type Deps struct {
	Counters    counter.Store
	Selector    selectors.Selector
	Reports     *reporting.Aggregator
	Events      *analytics.Recorder
	ViewLimiter logic.Limiter
	Logger      *zap.Logger
}

// Service ties counters, ad selection and reporting together.
type Service struct {
	counters counter.Store
	selector selectors.Selector
	reports  *reporting.Aggregator
	events   *analytics.Recorder
	limiter  logic.Limiter
	logger   *zap.Logger
}

// New returns a Service over deps.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		counters: deps.Counters,
		selector: deps.Selector,
		reports:  deps.Reports,
		events:   deps.Events,
		limiter:  deps.ViewLimiter,
		logger:   logger,
	}
}

type visitorKey struct{}

// WithVisitor attaches the requesting visitor to ctx so recorded events
// carry its country and device.
func WithVisitor(ctx context.Context, v logic.Visitor) context.Context {
	return context.WithValue(ctx, visitorKey{}, v)
}

func visitorFrom(ctx context.Context) logic.Visitor {
	v, _ := ctx.Value(visitorKey{}).(logic.Visitor)
	return v
}

func (s *Service) record(ctx context.Context, metric models.Metric, entityID, position string) {
	if s.events == nil {
		return
	}
	v := visitorFrom(ctx)
	ev := analytics.NewEvent(metric, entityID)
	ev.Position = position
	ev.Country = v.Country
	ev.DeviceType = v.DeviceType
	ev.RequestID = middleware.RequestID(ctx)
	s.events.Record(ev)
}

// IncrementCounter adds delta to a counter and returns the new value.
func (s *Service) IncrementCounter(ctx context.Context, entityID string, metric models.Metric, delta int64) (int64, error) {
	cmd := counter.IncrementCommand{EntityID: entityID, Metric: metric, Delta: delta}
	n, err := cmd.Apply(ctx, s.counters)
	if err != nil {
		return 0, err
	}
	s.record(ctx, metric, entityID, "")
	return n, nil
}

// ReadCounter returns the value of a counter, 0 when never incremented.
func (s *Service) ReadCounter(ctx context.Context, entityID string, metric models.Metric) (int64, error) {
	return s.counters.Read(ctx, entityID, metric)
}

// RecordView counts a page view of contentID by v. Bots and rate-limited
// visitors are rejected with logic.ErrBotVisitor or logic.ErrRateLimited.
func (s *Service) RecordView(ctx context.Context, contentID string, v logic.Visitor) (int64, error) {
	if err := logic.AdmitView(v, s.limiter); err != nil {
		return 0, err
	}
	return s.IncrementCounter(WithVisitor(ctx, v), contentID, models.MetricView, 1)
}

// SelectAd picks a creative for position and counts its impression. Nil
// means the slot stays empty.
func (s *Service) SelectAd(ctx context.Context, position string) (*models.AdCreative, error) {
	return s.SelectAdTraced(ctx, position, nil)
}

// SelectAdTraced is SelectAd recording the selection steps in trace.
func (s *Service) SelectAdTraced(ctx context.Context, position string, trace *logic.SelectionTrace) (*models.AdCreative, error) {
	ad, err := s.selector.SelectAd(ctx, position, trace)
	if err != nil || ad == nil {
		return ad, err
	}
	s.record(ctx, models.MetricImpression, ad.ID, ad.Position)
	return ad, nil
}

// RecordClick counts a click on adID.
func (s *Service) RecordClick(ctx context.Context, adID string) error {
	if err := s.selector.RecordClick(ctx, adID); err != nil {
		return err
	}
	s.record(ctx, models.MetricClick, adID, "")
	return nil
}

// BuildReport computes the content report for window.
func (s *Service) BuildReport(ctx context.Context, window reporting.Window, topN int) (*reporting.Report, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("reporting not configured")
	}
	return s.reports.BuildReport(ctx, window, topN)
}

// BuildAdReport computes the ad delivery report.
func (s *Service) BuildAdReport(ctx context.Context) (*reporting.AdReport, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("reporting not configured")
	}
	return s.reports.BuildAdReport(ctx)
}
