// Package reporting builds the dashboard reports from the event counters and
// the portal's content and ad metadata.
//
// Reports are recomputed on every request. Metadata is fetched per category
// and counters are read in batches; a slice that cannot be fetched is left
// out and the report is flagged Degraded with the slice named in Omitted.
// A report is never discarded because one slice failed.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/observability"
)

var tracer = observability.Tracer("reporting")

const (
	DefaultTopN      = 10
	MaxTopN          = 100
	RecentLimit      = 10
	defaultBatchSize = 200
	defaultParallel  = 4
	// dailyLookback bounds the daily trend of the all-time report.
	dailyLookback = 90 * 24 * time.Hour
)

// PostStat is one row of the top-N ranking.
type PostStat struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CategoryID string    `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Views      int64     `json:"views"`
}

// CategoryStat aggregates the published posts of one category. The row for
// uncategorized posts has an empty CategoryID.
type CategoryStat struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	PostCount  int    `json:"post_count"`
	Views      int64  `json:"views"`
}

// Report is the content dashboard summary for one window.
type Report struct {
	Window          Window         `json:"window"`
	GeneratedAt     time.Time      `json:"generated_at"`
	TotalViews      int64          `json:"total_views"`
	PublishedCount  int            `json:"published_count"`
	AvgViewsPerPost float64        `json:"avg_views_per_post"`
	TopN            []PostStat     `json:"top_n"`
	PerCategory     []CategoryStat `json:"per_category"`

	// TotalPosts counts every post created in the window, drafts included.
	// Nil when it could not be computed.
	TotalPosts     *int                   `json:"total_posts,omitempty"`
	RecentActivity []models.ContentItem   `json:"recent_activity,omitempty"`
	DailyViews     []analytics.DailyCount `json:"daily_views,omitempty"`

	Degraded bool     `json:"degraded"`
	Omitted  []string `json:"omitted,omitempty"`
}

func (r *Report) omit(section string) {
	r.Degraded = true
	r.Omitted = append(r.Omitted, section)
}

// DailySource supplies per-day event counts. Optional.
type DailySource interface {
	DailyCounts(ctx context.Context, metric models.Metric, since time.Time) ([]analytics.DailyCount, error)
}

// Config tunes the aggregator. Zero values pick defaults.
type Config struct {
	// BatchSize is the number of counters read per ReadMany call.
	BatchSize int
	// Parallelism bounds concurrent metadata fetches.
	Parallelism int
}

// Aggregator computes reports. It only reads; it never takes a lock shared
// with the increment path, so reports may trail in-flight increments.
type Aggregator struct {
	content  models.ContentRepository
	ads      models.AdRepository
	counters counter.Store
	daily    DailySource
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	cfg      Config
	now      func() time.Time
}

// NewAggregator wires an aggregator. daily, logger and metrics may be nil.
func NewAggregator(content models.ContentRepository, ads models.AdRepository, counters counter.Store, daily DailySource, cfg Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Aggregator{
		content:  content,
		ads:      ads,
		counters: counters,
		daily:    daily,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// NormalizeTopN applies the default for n <= 0 and caps n at MaxTopN.
func NormalizeTopN(n int) int {
	if n <= 0 {
		return DefaultTopN
	}
	return min(n, MaxTopN)
}

// slice is one independently fetched partition of the published posts.
type slice struct {
	section  string
	filter   models.ContentFilter
	category *models.Category
	items    []models.ContentItem
	err      error
}

// BuildReport computes the report for window with the topN most viewed posts.
func (a *Aggregator) BuildReport(ctx context.Context, window Window, topN int) (*Report, error) {
	ctx, span := tracer.Start(ctx, "reporting.BuildReport")
	defer span.End()
	start := time.Now()

	topN = NormalizeTopN(topN)
	now := a.now().UTC()
	since := window.Since(now)
	span.SetAttributes(attribute.String("window", window.String()), attribute.Int("top_n", topN))

	report := &Report{Window: window, GeneratedAt: now}

	slices := a.partition(ctx, models.ContentFilter{Since: since}, report)
	a.fetchSlices(ctx, slices)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		posts  []models.ContentItem
		seen   = make(map[string]struct{})
		rows   = make(map[string]*CategoryStat)
		rowIDs []string
	)
	for _, s := range slices {
		if s.err != nil {
			a.logger.Warn("report slice unavailable", zap.String("section", s.section), zap.Error(s.err))
			report.omit(s.section)
			continue
		}
		if s.category != nil {
			rows[s.category.ID] = &CategoryStat{CategoryID: s.category.ID, Name: s.category.Name, Color: s.category.Color}
			rowIDs = append(rowIDs, s.category.ID)
		}
		for _, it := range s.items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			posts = append(posts, it)
		}
	}

	views, counted := a.readViews(ctx, posts, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := make([]PostStat, 0, len(counted))
	for _, it := range counted {
		v := views[it.ID]
		stats = append(stats, PostStat{ID: it.ID, Title: it.Title, CategoryID: it.CategoryID, CreatedAt: it.CreatedAt, Views: v})
		report.TotalViews += v

		row, ok := rows[it.CategoryID]
		if !ok {
			row = &CategoryStat{CategoryID: it.CategoryID, Name: categoryName(it.CategoryID)}
			rows[it.CategoryID] = row
			rowIDs = append(rowIDs, it.CategoryID)
		}
		row.PostCount++
		row.Views += v
	}
	report.PublishedCount = len(stats)
	if report.PublishedCount > 0 {
		report.AvgViewsPerPost = float64(report.TotalViews) / float64(report.PublishedCount)
	}

	sortPosts(stats)
	if len(stats) > topN {
		stats = stats[:topN]
	}
	report.TopN = stats

	report.PerCategory = make([]CategoryStat, 0, len(rowIDs))
	for _, id := range rowIDs {
		report.PerCategory = append(report.PerCategory, *rows[id])
	}
	sortCategories(report.PerCategory)

	a.addSupplements(ctx, report, since, now)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("published", report.PublishedCount),
		attribute.Int64("total_views", report.TotalViews),
		attribute.Bool("degraded", report.Degraded),
	)
	a.metrics.IncrementReports("content", report.Degraded)
	a.metrics.RecordReportDuration("content", time.Since(start))
	return report, nil
}

func categoryName(id string) string {
	if id == "" {
		return "Uncategorized"
	}
	return id
}

// partition splits the published posts into one slice per listed category
// plus a catch-all slice for uncategorized posts and posts whose category is
// missing from the list (deleted, or created after the list was read). Without a category list the posts are fetched in one
// unpartitioned slice and the report is marked degraded.
func (a *Aggregator) partition(ctx context.Context, filter models.ContentFilter, report *Report) []*slice {
	cats, err := a.content.ListCategories(ctx)
	if err != nil {
		a.logger.Warn("category list unavailable, fetching unpartitioned", zap.Error(err))
		report.omit("categories")
		return []*slice{{section: "posts", filter: filter}}
	}
	out := make([]*slice, 0, len(cats)+1)
	ids := make([]string, 0, len(cats))
	for i := range cats {
		c := cats[i]
		ids = append(ids, c.ID)
		out = append(out, &slice{section: "category:" + c.ID, filter: filter.ForCategory(c.ID), category: &c})
	}
	out = append(out, &slice{section: "other", filter: filter.OutsideCategories(ids)})
	return out
}

func (a *Aggregator) fetchSlices(ctx context.Context, slices []*slice) {
	var g errgroup.Group
	g.SetLimit(a.cfg.Parallelism)
	for _, s := range slices {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				s.err = err
				return nil
			}
			s.items, s.err = a.content.ListPublished(ctx, s.filter)
			return nil
		})
	}
	_ = g.Wait()
}

// readViews reads view counters in batches. Posts in a failed batch are
// dropped from the report; the returned slice holds the posts that were
// counted.
func (a *Aggregator) readViews(ctx context.Context, posts []models.ContentItem, report *Report) (map[string]int64, []models.ContentItem) {
	views := make(map[string]int64, len(posts))
	counted := make([]models.ContentItem, 0, len(posts))

	for batch, start := 0, 0; start < len(posts); batch, start = batch+1, start+a.cfg.BatchSize {
		end := min(start+a.cfg.BatchSize, len(posts))
		chunk := posts[start:end]
		ids := make([]string, len(chunk))
		for i, it := range chunk {
			ids[i] = it.ID
		}
		got, err := a.counters.ReadMany(ctx, ids, models.MetricView)
		if err != nil {
			if ctx.Err() != nil {
				return views, counted
			}
			a.logger.Warn("view counters unavailable", zap.Int("batch", batch), zap.Int("posts", len(ids)), zap.Error(err))
			report.omit(fmt.Sprintf("views:batch-%d", batch))
			continue
		}
		for id, v := range got {
			views[id] = v
		}
		counted = append(counted, chunk...)
	}
	return views, counted
}

// addSupplements fills the dashboard extras. Each one fails independently.
func (a *Aggregator) addSupplements(ctx context.Context, report *Report, since, now time.Time) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(section string, err error) {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("report section unavailable", zap.String("section", section), zap.Error(err))
		mu.Lock()
		report.omit(section)
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		n, err := a.content.CountAll(ctx, since)
		if err != nil {
			fail("total_posts", err)
			return
		}
		mu.Lock()
		report.TotalPosts = &n
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		recent, err := a.content.ListRecent(ctx, RecentLimit)
		if err != nil {
			fail("recent_activity", err)
			return
		}
		mu.Lock()
		report.RecentActivity = recent
		mu.Unlock()
	}()

	if a.daily != nil {
		dailySince := since
		if dailySince.IsZero() {
			dailySince = now.Add(-dailyLookback)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			days, err := a.daily.DailyCounts(ctx, models.MetricView, dailySince)
			if err != nil {
				if errors.Is(err, analytics.ErrUnavailable) {
					return
				}
				fail("daily_views", err)
				return
			}
			mu.Lock()
			report.DailyViews = days
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Strings(report.Omitted)
}

// sortPosts orders by views desc, then newer CreatedAt, then id asc.
func sortPosts(stats []PostStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// sortCategories orders by views desc, then category id asc.
func sortCategories(rows []CategoryStat) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Views != rows[j].Views {
			return rows[i].Views > rows[j].Views
		}
		return rows[i].CategoryID < rows[j].CategoryID
	})
}
