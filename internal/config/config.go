package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Counter backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	Environment  string

	// Counters
	CounterBackend   string
	RedisAddr        string
	RedisPoolSize    int
	CounterBatchSize int

	// Metadata
	PostgresDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	ReloadInterval    time.Duration

	// Event log
	AnalyticsEnabled       bool
	ClickHouseDSN          string
	AnalyticsBuffer        int
	AnalyticsBatchSize     int
	AnalyticsFlushInterval time.Duration

	// Visitors
	GeoIPDB               string
	TrustedProxies        string
	ViewRateLimitEnabled  bool
	ViewRateLimitCapacity int
	ViewRateLimitRefill   float64
	ViewRateLimitIdleTTL  time.Duration
	TokenSecret           string
	TokenTTL              time.Duration

	// Reports
	ReportTimeout          time.Duration
	ReportParallelism      int
	ReportSnapshotSchedule string

	// Tracing
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "portalmetrics")
	cfg.Environment = getenv("ENV", "development")

	cfg.CounterBackend = getenv("COUNTER_BACKEND", BackendRedis)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPoolSize = envInt("REDIS_POOL_SIZE", 0)
	cfg.CounterBatchSize = envInt("COUNTER_BATCH_SIZE", 500)

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/portal?sslmode=disable")
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)
	// default to 30 seconds between automatic ad catalog reloads
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 30*time.Second)

	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default")
	cfg.AnalyticsBuffer = envInt("ANALYTICS_BUFFER", 10000)
	cfg.AnalyticsBatchSize = envInt("ANALYTICS_BATCH_SIZE", 500)
	cfg.AnalyticsFlushInterval = envDuration("ANALYTICS_FLUSH_INTERVAL", 2*time.Second)

	cfg.GeoIPDB = getenv("GEOIP_DB", "")
	cfg.TrustedProxies = getenv("TRUSTED_PROXIES", "")
	cfg.ViewRateLimitEnabled = envBool("VIEW_RATE_LIMIT_ENABLED", true)
	cfg.ViewRateLimitCapacity = envInt("VIEW_RATE_LIMIT_CAPACITY", 30)
	cfg.ViewRateLimitRefill = envFloat("VIEW_RATE_LIMIT_REFILL_RATE", 0.5)
	cfg.ViewRateLimitIdleTTL = envDuration("VIEW_RATE_LIMIT_IDLE_TTL", 10*time.Minute)
	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 30*time.Minute)

	cfg.ReportTimeout = envDuration("REPORT_TIMEOUT", 10*time.Second)
	cfg.ReportParallelism = envInt("REPORT_PARALLELISM", 4)
	cfg.ReportSnapshotSchedule = getenv("REPORT_SNAPSHOT_SCHEDULE", "0 */5 * * * *")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.CounterBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.CounterBackend)
	}
	if c.CounterBatchSize <= 0 {
		return fmt.Errorf("COUNTER_BATCH_SIZE must be positive, got %d", c.CounterBatchSize)
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
