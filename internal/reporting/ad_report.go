package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// AdStat is the delivery summary of one creative. CTR is a percentage and
// is nil when the creative has no impressions.
type AdStat struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Position    string   `json:"position"`
	Active      bool     `json:"active"`
	Impressions int64    `json:"impressions"`
	Clicks      int64    `json:"clicks"`
	CTR         *float64 `json:"ctr"`
}

// AdReport summarizes delivery across every creative.
type AdReport struct {
	GeneratedAt      time.Time `json:"generated_at"`
	TotalAds         int       `json:"total_ads"`
	ActiveAds        int       `json:"active_ads"`
	TotalImpressions int64     `json:"total_impressions"`
	TotalClicks      int64     `json:"total_clicks"`
	CTR              *float64  `json:"ctr"`
	Ads              []AdStat  `json:"ads"`
	Degraded         bool      `json:"degraded"`
	Omitted          []string  `json:"omitted,omitempty"`
}

// CTR returns clicks/impressions as a percentage rounded to two decimals,
// or nil when impressions is zero.
func CTR(clicks, impressions int64) *float64 {
	if impressions <= 0 {
		return nil
	}
	v := math.Round(float64(clicks)/float64(impressions)*10000) / 100
	return &v
}

// BuildAdReport reads impressions and clicks for every creative. A failed
// counter batch drops its creatives from the rows and the totals.
func (a *Aggregator) BuildAdReport(ctx context.Context) (*AdReport, error) {
	ctx, span := tracer.Start(ctx, "reporting.BuildAdReport")
	defer span.End()
	start := time.Now()

	ads, err := a.ads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}

	report := &AdReport{GeneratedAt: a.now().UTC(), TotalAds: len(ads)}
	for _, ad := range ads {
		if ad.Active {
			report.ActiveAds++
		}
	}

	for batch, lo := 0, 0; lo < len(ads); batch, lo = batch+1, lo+a.cfg.BatchSize {
		chunk := ads[lo:min(lo+a.cfg.BatchSize, len(ads))]
		ids := make([]string, len(chunk))
		for i, ad := range chunk {
			ids[i] = ad.ID
		}

		impressions, err := a.counters.ReadMany(ctx, ids, models.MetricImpression)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("impression counters unavailable", zap.Int("batch", batch), zap.Error(err))
			report.Degraded = true
			report.Omitted = append(report.Omitted, fmt.Sprintf("impressions:batch-%d", batch))
			continue
		}
		clicks, err := a.counters.ReadMany(ctx, ids, models.MetricClick)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("click counters unavailable", zap.Int("batch", batch), zap.Error(err))
			report.Degraded = true
			report.Omitted = append(report.Omitted, fmt.Sprintf("clicks:batch-%d", batch))
			continue
		}

		for _, ad := range chunk {
			imp, clk := impressions[ad.ID], clicks[ad.ID]
			report.Ads = append(report.Ads, AdStat{
				ID:          ad.ID,
				Title:       ad.Title,
				Position:    ad.Position,
				Active:      ad.Active,
				Impressions: imp,
				Clicks:      clk,
				CTR:         CTR(clk, imp),
			})
			report.TotalImpressions += imp
			report.TotalClicks += clk
		}
	}
	report.CTR = CTR(report.TotalClicks, report.TotalImpressions)

	sort.SliceStable(report.Ads, func(i, j int) bool {
		if report.Ads[i].Impressions != report.Ads[j].Impressions {
			return report.Ads[i].Impressions > report.Ads[j].Impressions
		}
		return report.Ads[i].ID < report.Ads[j].ID
	})

	span.SetAttributes(attribute.Int("ads", report.TotalAds), attribute.Bool("degraded", report.Degraded))
	a.metrics.IncrementReports("ads", report.Degraded)
	a.metrics.RecordReportDuration("ads", time.Since(start))
	return report, nil
}
