package observability

import (
	"math/rand"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultServiceName names the logger when no service name is configured.
const DefaultServiceName = "portalmetrics"

// InitLogger constructs a production zap.Logger for the default service name.
func InitLogger() (*zap.Logger, error) {
	return InitLoggerWithLevel(getLogLevel(), DefaultServiceName)
}

// InitLoggerWithService constructs a production zap.Logger named after
// serviceName. The returned logger should be passed to other components.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return InitLoggerWithLevel(getLogLevel(), serviceName)
}

// InitLoggerWithLevel constructs a zap.Logger at the provided level.
// The returned logger is named with the service name and installed as the global logger.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	// Field names match what the log shipper expects
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// getLogLevel picks the level from LOG_LEVEL, falling back to a default
// derived from ENV (debug in development, info elsewhere).
func getLogLevel() zapcore.Level {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(raw))); err == nil {
			return lvl
		}
		return zap.InfoLevel
	}
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

// ShouldSample returns true if a hot-path log line should be emitted.
// rate is between 0.0 and 1.0 (e.g. 0.1 for 10% sampling).
func ShouldSample(rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	return rand.Float64() < rate
}

// GetSamplingRate returns the hot-path sampling rate for the current environment.
func GetSamplingRate() float64 {
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return 1.0
	case "staging", "test":
		return 0.5
	default:
		return 0.1
	}
}
