package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithTraceLogger_IssuesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	var seen string
	h := WithTraceLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		LoggerFromRequest(r, zap.NewNop()).Info("handled")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	entries := logs.FilterField(zap.String("request_id", seen)).All()
	assert.Len(t, entries, 1)
}

func TestWithTraceLogger_ReusesIncomingID(t *testing.T) {
	var seen string
	h := WithTraceLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFromContext(context.Background(), fallback))
	assert.Equal(t, "", RequestID(context.Background()))
}
