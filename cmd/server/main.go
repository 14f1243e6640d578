package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/api"
	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/geoip"
	"github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/logic/ratelimit"
	"github.com/patrickwarner/portalmetrics/internal/logic/selectors"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/observability"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
	"github.com/patrickwarner/portalmetrics/internal/service"
	"github.com/patrickwarner/portalmetrics/internal/token"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.TempoEndpoint,
			SampleRate:  cfg.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	catalog := db.NewAdCatalog(pg)
	if err := catalog.Reload(ctx); err != nil {
		return fmt.Errorf("load ads: %w", err)
	}
	logger.Info("ad catalog loaded", zap.Int("ads", catalog.Len()))

	// Redis carries the reload channel even when counters live in memory.
	store, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
	if err != nil {
		if cfg.CounterBackend == config.BackendRedis {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		logger.Warn("redis unavailable, reload notifications disabled", zap.Error(err))
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	var backend counter.Store
	switch cfg.CounterBackend {
	case config.BackendMemory:
		backend = counter.NewMemoryCounter()
		logger.Warn("using in-memory counters; values are lost on restart")
	default:
		backend = counter.NewRedisCounter(store.Client, cfg.CounterBatchSize)
	}
	counters := counter.NewInstrumented(backend, metricsRegistry)

	var events *analytics.Recorder
	var ch *analytics.ClickHouse
	if cfg.AnalyticsEnabled {
		ch, err = analytics.InitClickHouse(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		events = analytics.NewRecorder(ch, analytics.RecorderConfig{
			BufferSize:    cfg.AnalyticsBuffer,
			BatchSize:     cfg.AnalyticsBatchSize,
			FlushInterval: cfg.AnalyticsFlushInterval,
		}, logger, metricsRegistry)
	}

	var geoSvc *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geoSvc, err = geoip.Open(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geoSvc.Close() }()
	}

	proxies, err := logic.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	viewLimiter := ratelimit.NewVisitorLimiter("view", ratelimit.Config{
		Capacity:   cfg.ViewRateLimitCapacity,
		RefillRate: cfg.ViewRateLimitRefill,
		Enabled:    cfg.ViewRateLimitEnabled,
		IdleTTL:    cfg.ViewRateLimitIdleTTL,
	}, metricsRegistry)

	var daily reporting.DailySource
	if ch != nil {
		daily = ch
	}
	aggregator := reporting.NewAggregator(pg, catalog, counters, daily, reporting.Config{
		BatchSize:   cfg.CounterBatchSize,
		Parallelism: cfg.ReportParallelism,
	}, logger, metricsRegistry)

	svc := service.New(service.Deps{
		Counters:    counters,
		Selector:    selectors.NewDeliveryRatioSelector(catalog, counters, logger, metricsRegistry),
		Reports:     aggregator,
		Events:      events,
		ViewLimiter: viewLimiter,
		Logger:      logger,
	})

	signer := token.NewSigner([]byte(cfg.TokenSecret), cfg.TokenTTL)
	srvDeps := api.NewServer(logger, svc, catalog, store, pg, geoSvc, signer, metricsRegistry, cfg)
	srvDeps.TrustedProxies = proxies

	r := mux.NewRouter()
	srvDeps.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = middleware.WithTraceLogger(logger)(r)
	handler = otelhttp.NewHandler(handler, "portalmetrics")

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("portal metrics server running",
		zap.String("addr", addr),
		zap.String("counter_backend", cfg.CounterBackend),
		zap.Bool("analytics", events != nil))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	// The recorder outlives the signal so requests still in flight during
	// Shutdown can record their events.
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	if events != nil {
		go events.Run(eventsCtx)
	}

	if store != nil {
		go store.SubscribeReload(ctx, logger, func(msg db.ReloadMessage) {
			if err := catalog.Reload(ctx); err != nil {
				logger.Error("reload on notification", zap.String("entity", msg.Entity), zap.Error(err))
			}
		})
	}

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := catalog.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
					if n := viewLimiter.Sweep(); n > 0 {
						logger.Debug("swept idle view buckets", zap.Int("buckets", n))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	if cfg.ReportSnapshotSchedule != "" {
		snap, err := reporting.NewSnapshotter(aggregator, cfg.ReportSnapshotSchedule, cfg.ReportTimeout, logger, metricsRegistry)
		if err != nil {
			return fmt.Errorf("report snapshot schedule: %w", err)
		}
		snap.Start()
		defer snap.Stop()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// Run drains its buffer once its context is cancelled.
	stopEvents()
	events.Wait()

	return nil
}
