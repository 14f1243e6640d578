package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

type stubLoader struct {
	ads []models.AdCreative
	err error
}

func (s *stubLoader) LoadAds(context.Context) ([]models.AdCreative, error) {
	return s.ads, s.err
}

func TestAdCatalog_ReloadIndexesActiveByPosition(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := &stubLoader{ads: []models.AdCreative{
		{ID: "b", Position: "header", Active: true, Weight: 1, CreatedAt: base.Add(time.Hour)},
		{ID: "a", Position: "header", Active: true, Weight: 1, CreatedAt: base},
		{ID: "c", Position: "header", Active: false, Weight: 1, CreatedAt: base},
		{ID: "d", Position: "footer", Active: true, Weight: 2, CreatedAt: base},
	}}
	c := NewAdCatalog(loader)
	ctx := context.Background()

	require.NoError(t, c.Reload(ctx))

	header, err := c.ListActive(ctx, "header")
	require.NoError(t, err)
	require.Len(t, header, 2)
	assert.Equal(t, "a", header[0].ID)
	assert.Equal(t, "b", header[1].ID)

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 4, c.Len())

	ad, ok := c.Find("c")
	require.True(t, ok)
	assert.False(t, ad.Active)

	none, err := c.ListActive(ctx, "sidebar")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdCatalog_FailedReloadKeepsSnapshot(t *testing.T) {
	loader := &stubLoader{ads: []models.AdCreative{{ID: "a", Position: "header", Active: true, Weight: 1}}}
	c := NewAdCatalog(loader)
	ctx := context.Background()
	require.NoError(t, c.Reload(ctx))

	loader.err = errors.New("db down")
	require.Error(t, c.Reload(ctx))

	header, err := c.ListActive(ctx, "header")
	require.NoError(t, err)
	assert.Len(t, header, 1)
}

func TestAdCatalog_ListActiveReturnsCopy(t *testing.T) {
	c := NewAdCatalog(nil)
	c.Set([]models.AdCreative{{ID: "a", Position: "header", Active: true, Weight: 1}})
	ctx := context.Background()

	first, _ := c.ListActive(ctx, "header")
	first[0].ID = "mutated"

	second, _ := c.ListActive(ctx, "header")
	assert.Equal(t, "a", second[0].ID)
}

func TestAdCatalog_ConcurrentReadsDuringReload(t *testing.T) {
	loader := &stubLoader{ads: []models.AdCreative{{ID: "a", Position: "header", Active: true, Weight: 1}}}
	c := NewAdCatalog(loader)
	ctx := context.Background()
	require.NoError(t, c.Reload(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ads, err := c.ListActive(ctx, "header")
				assert.NoError(t, err)
				assert.Len(t, ads, 1)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, c.Reload(ctx))
	}
	wg.Wait()
}

func TestPublishedQuery(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	q, args := publishedQuery(models.ContentFilter{})
	assert.Equal(t, `SELECT id, title, category_id, published, created_at FROM posts WHERE published ORDER BY created_at, id`, q)
	assert.Empty(t, args)

	q, args = publishedQuery(models.ContentFilter{Since: since}.ForCategory("tech"))
	assert.Contains(t, q, "created_at >= $1")
	assert.Contains(t, q, "category_id = $2")
	assert.Equal(t, []any{since, "tech"}, args)

	q, args = publishedQuery(models.ContentFilter{}.ForCategory(""))
	assert.Contains(t, q, "category_id IS NULL")
	assert.Empty(t, args)

	q, args = publishedQuery(models.ContentFilter{Since: since}.OutsideCategories([]string{"tech", "art"}))
	assert.Contains(t, q, "(category_id IS NULL OR category_id <> ALL($2))")
	require.Len(t, args, 2)
	assert.Equal(t, pq.Array([]string{"tech", "art"}), args[1])
}

func TestMemoryContent(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryContent([]models.ContentItem{
		{ID: "p1", CategoryID: "tech", Published: true, CreatedAt: base},
		{ID: "p2", CategoryID: "", Published: true, CreatedAt: base.Add(48 * time.Hour)},
		{ID: "p3", CategoryID: "tech", Published: false, CreatedAt: base.Add(72 * time.Hour)},
	}, []models.Category{{ID: "tech", Name: "Tech"}, {ID: "art", Name: "Art"}})
	ctx := context.Background()

	all, err := repo.ListPublished(ctx, models.ContentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	uncategorized, err := repo.ListPublished(ctx, models.ContentFilter{}.ForCategory(""))
	require.NoError(t, err)
	require.Len(t, uncategorized, 1)
	assert.Equal(t, "p2", uncategorized[0].ID)

	recentWindow, err := repo.ListPublished(ctx, models.ContentFilter{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, recentWindow, 1)
	assert.Equal(t, "p2", recentWindow[0].ID)

	outside, err := repo.ListPublished(ctx, models.ContentFilter{}.OutsideCategories([]string{"art"}))
	require.NoError(t, err)
	assert.Len(t, outside, 2, "tech is not excluded and uncategorized always passes")

	outside, err = repo.ListPublished(ctx, models.ContentFilter{}.OutsideCategories([]string{"tech"}))
	require.NoError(t, err)
	require.Len(t, outside, 1)
	assert.Equal(t, "p2", outside[0].ID)

	cats, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "art", cats[0].ID)

	n, err := repo.CountAll(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "p3", recent[0].ID)
	assert.Equal(t, "p2", recent[1].ID)
}

func TestRedisStore_ReloadPubSub(t *testing.T) {
	s := miniredis.RunT(t)
	rs := &RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
	t.Cleanup(rs.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ReloadMessage, 16)
	go rs.SubscribeReload(ctx, zaptest.NewLogger(t), func(m ReloadMessage) {
		got <- m
	})

	// The subscription is established asynchronously; keep publishing
	// until the first message arrives.
	var received ReloadMessage
	require.Eventually(t, func() bool {
		assert.NoError(t, rs.PublishReload(ctx, ReloadMessage{Entity: "ads", Reason: "test"}))
		select {
		case received = <-got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ads", received.Entity)
	assert.Equal(t, "test", received.Reason)
}
