package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

type loggerKey struct{}

type requestIDKey struct{}

// WithTraceLogger attaches a request id and, when tracing is active, the
// trace and span ids to a per-request logger stored in the context. An
// incoming X-Request-ID is reused; otherwise a new UUID is issued and echoed
// in the response.
func WithTraceLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" || len(reqID) > 128 {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			fields := []zap.Field{zap.String("request_id", reqID)}
			if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
				fields = append(fields,
					zap.String("trace_id", sc.TraceID().String()),
					zap.String("span_id", sc.SpanID().String()),
				)
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			ctx = context.WithValue(ctx, loggerKey{}, logger.With(fields...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID returns the request id stored by WithTraceLogger, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggerFromContext retrieves the logger from context
// If no logger is found, returns the provided fallback logger
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return fallback.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return fallback
}

// LoggerFromRequest is a convenience function to get logger from HTTP request
func LoggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	return LoggerFromContext(r.Context(), fallback)
}
