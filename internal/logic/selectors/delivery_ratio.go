package selectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/counter"
	logic "github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/observability"
)

var tracer = observability.Tracer("selectors")

// Selection outcomes reported to metrics.
const (
	outcomeServed   = "served"
	outcomeEmpty    = "empty"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)

// DeliveryRatioSelector rotates creatives so that each one's impressions
// track its weight. For every request it serves the creative whose
// impressions/weight ratio is lowest, so over time creative i receives
// weight_i / Σweight of the deliveries. The only shared state is the
// impression counters themselves.
type DeliveryRatioSelector struct {
	ads      models.AdRepository
	counters counter.Store
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
}

// NewDeliveryRatioSelector wires a selector. logger and metrics may be nil.
func NewDeliveryRatioSelector(ads models.AdRepository, counters counter.Store, logger *zap.Logger, metrics observability.MetricsRegistry) *DeliveryRatioSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &DeliveryRatioSelector{ads: ads, counters: counters, logger: logger, metrics: metrics}
}

type candidate struct {
	ad          models.AdCreative
	impressions int64
}

// less orders by delivery ratio, then CreatedAt, then id. Ratios are compared
// by cross-multiplying so weights never need dividing.
func less(a, b candidate) bool {
	lhs := float64(a.impressions) * b.ad.Weight
	rhs := float64(b.impressions) * a.ad.Weight
	if lhs != rhs {
		return lhs < rhs
	}
	return staticLess(a.ad, b.ad)
}

func staticLess(a, b models.AdCreative) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func traceCandidates(cands []candidate) []logic.TraceCandidate {
	out := make([]logic.TraceCandidate, len(cands))
	for i, c := range cands {
		out[i] = logic.TraceCandidate{
			AdID:        c.ad.ID,
			Impressions: c.impressions,
			Weight:      c.ad.Weight,
			Ratio:       float64(c.impressions) / c.ad.Weight,
		}
	}
	return out
}

// SelectAd picks the creative with the lowest delivery ratio for position and
// counts an impression for it. When counters cannot be read it falls back to
// the oldest eligible creative and does not count the impression.
func (s *DeliveryRatioSelector) SelectAd(ctx context.Context, position string, trace *logic.SelectionTrace) (*models.AdCreative, error) {
	ctx, span := tracer.Start(ctx, "selector.SelectAd")
	defer span.End()
	span.SetAttributes(attribute.String("position", position))

	active, err := s.ads.ListActive(ctx, position)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list active ads")
		s.metrics.IncrementAdSelection(position, outcomeError)
		return nil, fmt.Errorf("list active ads for %s: %w", position, err)
	}

	cands := make([]candidate, 0, len(active))
	ids := make([]string, 0, len(active))
	for _, ad := range active {
		if !ad.Eligible() {
			continue
		}
		cands = append(cands, candidate{ad: ad})
		ids = append(ids, ad.ID)
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	if len(cands) == 0 {
		trace.AddStep("eligible", nil)
		s.metrics.IncrementAdSelection(position, outcomeEmpty)
		return nil, nil
	}

	impressions, err := s.counters.ReadMany(ctx, ids, models.MetricImpression)
	if err != nil {
		s.logger.Warn("impression counters unavailable, serving in static order",
			zap.String("position", position), zap.Error(err))
		sort.Slice(cands, func(i, j int) bool { return staticLess(cands[i].ad, cands[j].ad) })
		trace.AddStepWithDetails("fallback", traceCandidates(cands), map[string]string{"error": err.Error()})
		s.metrics.IncrementAdSelection(position, outcomeFallback)
		chosen := cands[0].ad
		span.SetAttributes(attribute.String("ad_id", chosen.ID), attribute.Bool("fallback", true))
		return &chosen, nil
	}

	for i := range cands {
		cands[i].impressions = impressions[cands[i].ad.ID]
	}
	sort.Slice(cands, func(i, j int) bool { return less(cands[i], cands[j]) })
	trace.AddStep("ranked", traceCandidates(cands))

	chosen := cands[0].ad
	span.SetAttributes(attribute.String("ad_id", chosen.ID))

	n, err := s.counters.Increment(ctx, chosen.ID, models.MetricImpression, 1)
	if err != nil {
		// The creative is still served; the impression is lost.
		s.logger.Warn("impression increment failed",
			zap.String("ad_id", chosen.ID), zap.String("position", position), zap.Error(err))
		span.RecordError(err)
	} else {
		trace.AddStepWithDetails("selected", nil, map[string]string{
			"ad_id":       chosen.ID,
			"impressions": strconv.FormatInt(n, 10),
		})
	}
	s.metrics.IncrementAdSelection(position, outcomeServed)
	return &chosen, nil
}

// RecordClick counts a click against adID. Clicks are only ever recorded
// explicitly; nothing infers them from impressions.
func (s *DeliveryRatioSelector) RecordClick(ctx context.Context, adID string) error {
	ctx, span := tracer.Start(ctx, "selector.RecordClick")
	defer span.End()
	span.SetAttributes(attribute.String("ad_id", adID))

	if _, err := s.counters.Increment(ctx, adID, models.MetricClick, 1); err != nil {
		span.RecordError(err)
		if errors.Is(err, counter.ErrInvalidCommand) {
			return fmt.Errorf("%w: %q", ErrInvalidAdID, adID)
		}
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}
