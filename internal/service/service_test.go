package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/db"
	logic "github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/logic/ratelimit"
	"github.com/patrickwarner/portalmetrics/internal/logic/selectors"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
)

type captureWriter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (c *captureWriter) WriteEvents(_ context.Context, evs []analytics.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evs...)
	return nil
}

func newTestService(t *testing.T, w analytics.Writer) (*Service, *analytics.Recorder) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := counter.NewMemoryCounter()
	catalog := db.NewAdCatalog(nil)
	catalog.Set([]models.AdCreative{
		{ID: "ad-1", Position: "header", Active: true, Weight: 1, CreatedAt: time.Now().Add(-time.Hour)},
	})
	content := db.NewMemoryContent([]models.ContentItem{
		{ID: "post-1", Published: true, CreatedAt: time.Now().Add(-time.Hour)},
	}, nil)

	var rec *analytics.Recorder
	if w != nil {
		rec = analytics.NewRecorder(w, analytics.RecorderConfig{BufferSize: 100, BatchSize: 100, FlushInterval: time.Hour}, logger, nil)
	}
	svc := New(Deps{
		Counters:    store,
		Selector:    selectors.NewDeliveryRatioSelector(catalog, store, logger, nil),
		Reports:     reporting.NewAggregator(content, catalog, store, nil, reporting.Config{}, logger, nil),
		Events:      rec,
		ViewLimiter: ratelimit.NewVisitorLimiter("view", ratelimit.Config{Capacity: 2, RefillRate: 0, Enabled: true}, nil),
		Logger:      logger,
	})
	return svc, rec
}

func TestService_CountersAndReport(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	n, err := svc.IncrementCounter(ctx, "post-1", models.MetricView, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	v, err := svc.ReadCounter(ctx, "post-1", models.MetricView)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	_, err = svc.IncrementCounter(ctx, "post-1", "likes", 1)
	assert.ErrorIs(t, err, counter.ErrInvalidCommand)

	r, err := svc.BuildReport(ctx, reporting.WindowAll, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.TotalViews)
}

func TestService_RecordView(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RecordView(ctx, "post-1", logic.Visitor{IP: "1.1.1.1", IsBot: true})
	assert.ErrorIs(t, err, logic.ErrBotVisitor)

	human := logic.Visitor{IP: "2.2.2.2"}
	for i := 0; i < 2; i++ {
		_, err = svc.RecordView(ctx, "post-1", human)
		require.NoError(t, err)
	}
	_, err = svc.RecordView(ctx, "post-1", human)
	assert.ErrorIs(t, err, logic.ErrRateLimited)

	v, _ := svc.ReadCounter(ctx, "post-1", models.MetricView)
	assert.Equal(t, int64(2), v)
}

func TestService_AdFlowRecordsEvents(t *testing.T) {
	w := &captureWriter{}
	svc, rec := newTestService(t, w)
	ctx := WithVisitor(context.Background(), logic.Visitor{Country: "US", DeviceType: "mobile"})

	ad, err := svc.SelectAd(ctx, "header")
	require.NoError(t, err)
	require.NotNil(t, ad)
	require.NoError(t, svc.RecordClick(ctx, ad.ID))

	empty, err := svc.SelectAd(ctx, "footer")
	require.NoError(t, err)
	assert.Nil(t, empty)

	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(runCtx)

	require.Len(t, w.events, 2)
	assert.Equal(t, models.MetricImpression, w.events[0].Metric)
	assert.Equal(t, "header", w.events[0].Position)
	assert.Equal(t, "US", w.events[0].Country)
	assert.Equal(t, models.MetricClick, w.events[1].Metric)

	ar, err := svc.BuildAdReport(context.Background())
	require.NoError(t, err)
	require.Len(t, ar.Ads, 1)
	assert.Equal(t, int64(1), ar.Ads[0].Impressions)
	assert.Equal(t, int64(1), ar.Ads[0].Clicks)
}
