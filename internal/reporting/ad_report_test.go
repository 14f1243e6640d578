package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/models"
)

func adFixture(t *testing.T, store counter.Store) *Aggregator {
	catalog := db.NewAdCatalog(nil)
	catalog.Set([]models.AdCreative{
		{ID: "ad-1", Title: "One", Position: "header", Active: true, Weight: 1, CreatedAt: daysAgo(3)},
		{ID: "ad-2", Title: "Two", Position: "sidebar", Active: true, Weight: 1, CreatedAt: daysAgo(2)},
		{ID: "ad-3", Title: "Three", Position: "footer", Active: false, Weight: 1, CreatedAt: daysAgo(1)},
	})
	a := NewAggregator(db.NewMemoryContent(nil, nil), catalog, store, nil, Config{BatchSize: 2}, zaptest.NewLogger(t), nil)
	a.now = func() time.Time { return now }
	return a
}

func TestBuildAdReport(t *testing.T) {
	store := counter.NewMemoryCounter()
	ctx := context.Background()
	_, _ = store.Increment(ctx, "ad-1", models.MetricImpression, 200)
	_, _ = store.Increment(ctx, "ad-1", models.MetricClick, 3)
	_, _ = store.Increment(ctx, "ad-2", models.MetricImpression, 400)
	_, _ = store.Increment(ctx, "ad-2", models.MetricClick, 2)

	r, err := adFixture(t, store).BuildAdReport(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, r.TotalAds)
	assert.Equal(t, 2, r.ActiveAds)
	assert.Equal(t, int64(600), r.TotalImpressions)
	assert.Equal(t, int64(5), r.TotalClicks)
	require.NotNil(t, r.CTR)
	assert.InDelta(t, 0.83, *r.CTR, 1e-9)

	require.Len(t, r.Ads, 3)
	assert.Equal(t, "ad-2", r.Ads[0].ID)
	assert.Equal(t, "ad-1", r.Ads[1].ID)
	require.NotNil(t, r.Ads[1].CTR)
	assert.InDelta(t, 1.5, *r.Ads[1].CTR, 1e-9)

	assert.Equal(t, "ad-3", r.Ads[2].ID)
	assert.Nil(t, r.Ads[2].CTR, "CTR is undefined without impressions")
	assert.False(t, r.Degraded)
}

func TestBuildAdReport_NoImpressions(t *testing.T) {
	r, err := adFixture(t, counter.NewMemoryCounter()).BuildAdReport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r.CTR)
	for _, ad := range r.Ads {
		assert.Nil(t, ad.CTR)
	}
}

func TestBuildAdReport_DegradedBatch(t *testing.T) {
	store := &flakyCounters{Store: counter.NewMemoryCounter(), failCall: 0}
	r, err := adFixture(t, store).BuildAdReport(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Degraded)
	assert.Equal(t, []string{"impressions:batch-0"}, r.Omitted)
	require.Len(t, r.Ads, 1)
	assert.Equal(t, "ad-3", r.Ads[0].ID)
	assert.Equal(t, 3, r.TotalAds)
}

func TestCTR(t *testing.T) {
	assert.Nil(t, CTR(0, 0))
	assert.Nil(t, CTR(5, 0))
	v := CTR(1, 3)
	require.NotNil(t, v)
	assert.InDelta(t, 33.33, *v, 1e-9)
}
