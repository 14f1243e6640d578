package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.CounterBackend)
	assert.Equal(t, 500, cfg.CounterBatchSize)
	assert.Equal(t, 30*time.Second, cfg.ReloadInterval)
	assert.Equal(t, "0 */5 * * * *", cfg.ReportSnapshotSchedule)
	assert.False(t, cfg.AnalyticsEnabled)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("COUNTER_BACKEND", "memory")
	t.Setenv("COUNTER_BATCH_SIZE", "50")
	t.Setenv("RELOAD_INTERVAL", "90")
	t.Setenv("REPORT_TIMEOUT", "3s")
	t.Setenv("VIEW_RATE_LIMIT_REFILL_RATE", "2.5")
	t.Setenv("ANALYTICS_ENABLED", "true")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.CounterBackend)
	assert.Equal(t, 50, cfg.CounterBatchSize)
	assert.Equal(t, 90*time.Second, cfg.ReloadInterval)
	assert.Equal(t, 3*time.Second, cfg.ReportTimeout)
	assert.Equal(t, 2.5, cfg.ViewRateLimitRefill)
	assert.True(t, cfg.AnalyticsEnabled)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("COUNTER_BATCH_SIZE", "lots")
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("ANALYTICS_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 500, cfg.CounterBatchSize)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.AnalyticsEnabled)
}

func TestValidate(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cret")
	cfg := Load()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.CounterBackend = "etcd"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TokenSecret = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.CounterBatchSize = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TracingSampleRate = 1.5
	assert.Error(t, bad.Validate())
}
