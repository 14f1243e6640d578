package main

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
	"github.com/patrickwarner/portalmetrics/internal/reporting"
	"github.com/patrickwarner/portalmetrics/internal/service"
)

func newTestMetricsServer(t *testing.T) (*MetricsServer, *counter.MemoryCounter) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	content := db.NewMemoryContent([]models.ContentItem{
		{ID: "p1", CategoryID: "tech", Title: "Go tips", Published: true, CreatedAt: created},
		{ID: "p2", Title: "Notes", Published: true, CreatedAt: created.Add(time.Hour)},
		{ID: "draft", Title: "Draft", CreatedAt: created},
	}, []models.Category{{ID: "tech", Name: "Tech"}})

	catalog := db.NewAdCatalog(nil)
	catalog.Set([]models.AdCreative{
		{ID: "ad-1", Position: "header", Title: "Banner", Active: true, Weight: 1, CreatedAt: created},
	})

	counters := counter.NewMemoryCounter()
	agg := reporting.NewAggregator(content, catalog, counters, nil, reporting.Config{}, logger, nil)
	svc := service.New(service.Deps{Counters: counters, Reports: agg, Logger: logger})
	return &MetricsServer{svc: svc, timeout: time.Second, logger: logger}, counters
}

func TestBuildReportTool(t *testing.T) {
	ms, counters := newTestMetricsServer(t)
	ctx := context.Background()
	_, err := counters.Increment(ctx, "p1", models.MetricView, 4)
	require.NoError(t, err)
	_, err = counters.Increment(ctx, "p2", models.MetricView, 6)
	require.NoError(t, err)

	_, out, err := ms.BuildReport(ctx, nil, BuildReportInput{Window: "all", Top: 1})
	require.NoError(t, err)
	assert.Equal(t, "all", out.Window)
	assert.Equal(t, int64(10), out.TotalViews)
	assert.Equal(t, 2, out.PublishedCount)
	assert.InDelta(t, 5.0, out.AvgViewsPerPost, 1e-9)
	require.Len(t, out.TopPosts, 1)
	assert.Equal(t, "p2", out.TopPosts[0].ID)
	assert.Len(t, out.Categories, 2)
	assert.False(t, out.Degraded)
}

func TestBuildReportTool_InvalidWindow(t *testing.T) {
	ms, _ := newTestMetricsServer(t)
	_, _, err := ms.BuildReport(context.Background(), nil, BuildReportInput{Window: "fortnight"})
	assert.ErrorIs(t, err, reporting.ErrInvalidWindow)
}

func TestAdReportTool(t *testing.T) {
	ms, counters := newTestMetricsServer(t)
	ctx := context.Background()
	_, err := counters.Increment(ctx, "ad-1", models.MetricImpression, 200)
	require.NoError(t, err)
	_, err = counters.Increment(ctx, "ad-1", models.MetricClick, 3)
	require.NoError(t, err)

	_, out, err := ms.AdReport(ctx, nil, AdReportInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalAds)
	require.Len(t, out.Ads, 1)
	require.NotNil(t, out.Ads[0].CTR)
	assert.InDelta(t, 1.5, *out.Ads[0].CTR, 1e-9)
}

func TestReadCounterTool(t *testing.T) {
	ms, counters := newTestMetricsServer(t)
	ctx := context.Background()
	_, err := counters.Increment(ctx, "p1", models.MetricView, 2)
	require.NoError(t, err)

	_, out, err := ms.ReadCounter(ctx, nil, ReadCounterInput{EntityID: "p1", Metric: "view"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Value)

	_, out, err = ms.ReadCounter(ctx, nil, ReadCounterInput{EntityID: "nobody", Metric: "click"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Value)

	_, _, err = ms.ReadCounter(ctx, nil, ReadCounterInput{EntityID: "p1", Metric: "likes"})
	assert.Error(t, err)
}

func TestNewMCPServer(t *testing.T) {
	ms, _ := newTestMetricsServer(t)
	assert.NotNil(t, newMCPServer(ms))
}
