// Command portalctl inspects and seeds a portal metrics deployment from the
// command line. It reads the same environment variables as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/observability"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
	"github.com/patrickwarner/portalmetrics/internal/service"
)

var (
	jsonOutput bool
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "portalctl - inspect portal view, impression and click metrics",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := observability.InitLogger()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.AddCommand(reportCmd, adsCmd, counterCmd, eventsCmd, seedCmd)
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// backends are the connections a command opened; close releases them.
type backends struct {
	pg       *db.Postgres
	redis    *db.RedisStore
	counters counter.Store
	catalog  *db.AdCatalog
}

func (b *backends) close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}

func openCounters(ctx context.Context, cfg config.Config) (*db.RedisStore, counter.Store, error) {
	if cfg.CounterBackend == config.BackendMemory {
		return nil, nil, fmt.Errorf("COUNTER_BACKEND=memory keeps counters inside the server process; portalctl needs redis")
	}
	store, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
	if err != nil {
		return nil, nil, err
	}
	return store, counter.NewRedisCounter(store.Client, cfg.CounterBatchSize), nil
}

// openAll connects to Postgres and Redis and loads the ad catalog.
func openAll(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, 4, 2, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.pg = pg

	b.redis, b.counters, err = openCounters(ctx, cfg)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	b.catalog = db.NewAdCatalog(pg)
	if err := b.catalog.Reload(ctx); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func (b *backends) service(cfg config.Config) *service.Service {
	agg := reporting.NewAggregator(b.pg, b.catalog, b.counters, nil, reporting.Config{
		BatchSize:   cfg.CounterBatchSize,
		Parallelism: cfg.ReportParallelism,
	}, logger, nil)
	return service.New(service.Deps{Counters: b.counters, Reports: agg, Logger: logger})
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
