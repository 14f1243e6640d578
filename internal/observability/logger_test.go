package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		env      string
		want     zapcore.Level
	}{
		{"explicit", "warn", "", zap.WarnLevel},
		{"explicit upper case", "ERROR", "development", zap.ErrorLevel},
		{"garbage falls back to info", "loud", "development", zap.InfoLevel},
		{"development default", "", "dev", zap.DebugLevel},
		{"production default", "", "production", zap.InfoLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.logLevel)
			t.Setenv("ENV", tc.env)
			assert.Equal(t, tc.want, getLogLevel())
		})
	}
}

func TestInitLoggerWithService(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	logger, err := InitLoggerWithService("")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.WarnLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
	assert.Same(t, logger, zap.L())
}

func TestShouldSample(t *testing.T) {
	assert.True(t, ShouldSample(1))
	assert.False(t, ShouldSample(0))
	assert.False(t, ShouldSample(-1))
}
