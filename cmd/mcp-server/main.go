package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/observability"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
	"github.com/patrickwarner/portalmetrics/internal/service"
)

type BuildReportInput struct {
	Window string `json:"window,omitempty"`
	Top    int    `json:"top,omitempty"`
}

type TopPost struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Views int64  `json:"views"`
}

type CategoryRow struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	PostCount  int    `json:"post_count"`
	Views      int64  `json:"views"`
}

type BuildReportOutput struct {
	Window          string        `json:"window"`
	TotalViews      int64         `json:"total_views"`
	PublishedCount  int           `json:"published_count"`
	AvgViewsPerPost float64       `json:"avg_views_per_post"`
	TopPosts        []TopPost     `json:"top_posts"`
	Categories      []CategoryRow `json:"categories"`
	Degraded        bool          `json:"degraded"`
	Omitted         []string      `json:"omitted,omitempty"`
}

type AdReportInput struct{}

type AdRow struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Position    string   `json:"position"`
	Active      bool     `json:"active"`
	Impressions int64    `json:"impressions"`
	Clicks      int64    `json:"clicks"`
	CTR         *float64 `json:"ctr,omitempty"`
}

type AdReportOutput struct {
	TotalAds         int      `json:"total_ads"`
	ActiveAds        int      `json:"active_ads"`
	TotalImpressions int64    `json:"total_impressions"`
	TotalClicks      int64    `json:"total_clicks"`
	CTR              *float64 `json:"ctr,omitempty"`
	Ads              []AdRow  `json:"ads"`
	Degraded         bool     `json:"degraded"`
	Omitted          []string `json:"omitted,omitempty"`
}

type ReadCounterInput struct {
	EntityID string `json:"entity_id"`
	Metric   string `json:"metric"`
}

type ReadCounterOutput struct {
	EntityID string `json:"entity_id"`
	Metric   string `json:"metric"`
	Value    int64  `json:"value"`
}

// MetricsServer exposes read-only reporting tools over MCP.
type MetricsServer struct {
	svc     *service.Service
	timeout time.Duration
	logger  *zap.Logger
}

func (s *MetricsServer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// BuildReport implements the build_report tool.
func (s *MetricsServer) BuildReport(ctx context.Context, req *mcp.CallToolRequest, input BuildReportInput) (*mcp.CallToolResult, BuildReportOutput, error) {
	window, err := reporting.ParseWindow(input.Window)
	if err != nil {
		return nil, BuildReportOutput{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	report, err := s.svc.BuildReport(ctx, window, input.Top)
	if err != nil {
		return nil, BuildReportOutput{}, fmt.Errorf("build report: %w", err)
	}
	s.logger.Info("report built",
		zap.String("window", window.String()),
		zap.Int64("total_views", report.TotalViews),
		zap.Bool("degraded", report.Degraded))

	out := BuildReportOutput{
		Window:          report.Window.String(),
		TotalViews:      report.TotalViews,
		PublishedCount:  report.PublishedCount,
		AvgViewsPerPost: report.AvgViewsPerPost,
		TopPosts:        make([]TopPost, 0, len(report.TopN)),
		Categories:      make([]CategoryRow, 0, len(report.PerCategory)),
		Degraded:        report.Degraded,
		Omitted:         report.Omitted,
	}
	for _, p := range report.TopN {
		out.TopPosts = append(out.TopPosts, TopPost{ID: p.ID, Title: p.Title, Views: p.Views})
	}
	for _, c := range report.PerCategory {
		out.Categories = append(out.Categories, CategoryRow{CategoryID: c.CategoryID, Name: c.Name, PostCount: c.PostCount, Views: c.Views})
	}
	return nil, out, nil
}

// AdReport implements the ad_report tool.
func (s *MetricsServer) AdReport(ctx context.Context, req *mcp.CallToolRequest, _ AdReportInput) (*mcp.CallToolResult, AdReportOutput, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	report, err := s.svc.BuildAdReport(ctx)
	if err != nil {
		return nil, AdReportOutput{}, fmt.Errorf("build ad report: %w", err)
	}
	out := AdReportOutput{
		TotalAds:         report.TotalAds,
		ActiveAds:        report.ActiveAds,
		TotalImpressions: report.TotalImpressions,
		TotalClicks:      report.TotalClicks,
		CTR:              report.CTR,
		Ads:              make([]AdRow, 0, len(report.Ads)),
		Degraded:         report.Degraded,
		Omitted:          report.Omitted,
	}
	for _, a := range report.Ads {
		out.Ads = append(out.Ads, AdRow{
			ID:          a.ID,
			Title:       a.Title,
			Position:    a.Position,
			Active:      a.Active,
			Impressions: a.Impressions,
			Clicks:      a.Clicks,
			CTR:         a.CTR,
		})
	}
	return nil, out, nil
}

// ReadCounter implements the read_counter tool.
func (s *MetricsServer) ReadCounter(ctx context.Context, req *mcp.CallToolRequest, input ReadCounterInput) (*mcp.CallToolResult, ReadCounterOutput, error) {
	metric, err := models.ParseMetric(input.Metric)
	if err != nil {
		return nil, ReadCounterOutput{}, err
	}
	value, err := s.svc.ReadCounter(ctx, input.EntityID, metric)
	if err != nil {
		return nil, ReadCounterOutput{}, fmt.Errorf("read counter: %w", err)
	}
	return nil, ReadCounterOutput{EntityID: input.EntityID, Metric: metric.String(), Value: value}, nil
}

func newMCPServer(ms *MetricsServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "portalmetrics",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_report",
		Description: "Content view report: totals, top posts and per-category views for a time window",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"window": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"all", "7d", "30d", "90d"},
					"description": "Time window measured back from now (optional, defaults to all)",
				},
				"top": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     reporting.MaxTopN,
					"description": "Number of top posts to return (optional, defaults to 10)",
				},
			},
		},
	}, ms.BuildReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ad_report",
		Description: "Impressions, clicks and CTR for every ad creative",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, ms.AdReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_counter",
		Description: "Current value of a single view, impression or click counter",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "Content or ad creative ID",
				},
				"metric": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"view", "impression", "click"},
					"description": "Counter metric",
				},
			},
			"required": []string{"entity_id", "metric"},
		},
	}, ms.ReadCounter)

	return server
}

func main() {
	// Production logging goes to stderr; stdout carries the MCP stream.
	logger, err := observability.InitLoggerWithService("portalmetrics-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	ctx := context.Background()

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, 10, 5, 30*time.Minute, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	catalog := db.NewAdCatalog(pg)
	if err := catalog.Reload(ctx); err != nil {
		logger.Fatal("Failed to load ads", zap.Error(err))
	}

	var counters counter.Store
	switch cfg.CounterBackend {
	case config.BackendMemory:
		logger.Warn("memory counter backend has no shared state; all counters read as 0")
		counters = counter.NewMemoryCounter()
	default:
		store, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		counters = counter.NewRedisCounter(store.Client, cfg.CounterBatchSize)
	}

	var daily reporting.DailySource
	if cfg.AnalyticsEnabled {
		ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN)
		if err != nil {
			logger.Warn("ClickHouse unavailable, reports will omit daily views", zap.Error(err))
		} else {
			defer ch.Close()
			daily = ch
		}
	}

	agg := reporting.NewAggregator(pg, catalog, counters, daily, reporting.Config{
		BatchSize:   cfg.CounterBatchSize,
		Parallelism: cfg.ReportParallelism,
	}, logger, nil)

	ms := &MetricsServer{
		svc:     service.New(service.Deps{Counters: counters, Reports: agg, Logger: logger}),
		timeout: cfg.ReportTimeout,
		logger:  logger,
	}

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio", zap.Int("ads", catalog.Len()))
	if err := newMCPServer(ms).Run(ctx, transport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
