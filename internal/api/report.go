package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
)

func (s *Server) reportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Config.ReportTimeout > 0 {
		return context.WithTimeout(ctx, s.Config.ReportTimeout)
	}
	return context.WithCancel(ctx)
}

// ReportHandler handles GET /api/reports?window=30d&top=10.
func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ReportHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/api/reports"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/api/reports"
	const method = "GET"

	q := r.URL.Query()
	window, err := reporting.ParseWindow(q.Get("window"))
	if err != nil {
		s.finish(endpoint, method, "400", start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	topN := 0
	if v := q.Get("top"); v != "" {
		topN, err = strconv.Atoi(v)
		if err != nil {
			s.finish(endpoint, method, "400", start)
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
	}
	span.SetAttributes(attribute.String("window", window.String()), attribute.Int("top", topN))

	ctx, cancel := s.reportContext(ctx)
	defer cancel()

	report, err := s.Service.BuildReport(ctx, window, topN)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report failed")
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("report timed out", zap.String("window", window.String()))
			s.finish(endpoint, method, "504", start)
			http.Error(w, "report timed out", http.StatusGatewayTimeout)
			return
		}
		logger.Error("build report", zap.String("window", window.String()), zap.Error(err))
		s.finish(endpoint, method, "500", start)
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}
	if report.Degraded {
		logger.Warn("degraded report", zap.Strings("omitted", report.Omitted))
	}

	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, report)
}

// AdReportHandler handles GET /api/reports/ads.
func (s *Server) AdReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/api/reports/ads"
	const method = "GET"

	logger := middleware.LoggerFromRequest(r, s.Logger)

	ctx, cancel := s.reportContext(r.Context())
	defer cancel()

	report, err := s.Service.BuildAdReport(ctx)
	if err != nil {
		logger.Error("build ad report", zap.Error(err))
		s.finish(endpoint, method, "500", start)
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}

	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, report)
}
