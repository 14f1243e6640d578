package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/observability"
)

const maxViewBody = 4 << 10

// ViewRequest is the body of POST /view.
type ViewRequest struct {
	ContentID string `json:"content_id"`
}

// Validate trims the content id and rejects empty ones.
func (v *ViewRequest) Validate() error {
	v.ContentID = strings.TrimSpace(v.ContentID)
	if v.ContentID == "" {
		return errors.New("content_id required")
	}
	return nil
}

// ViewResponse reports whether the view was counted.
type ViewResponse struct {
	Counted bool   `json:"counted"`
	Views   int64  `json:"views,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ViewHandler handles POST /view beacons sent by rendered content pages.
func (s *Server) ViewHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ViewHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/view"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/view"
	const method = "POST"

	var req ViewRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxViewBody))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		logger.Debug("bad view request", zap.Error(err))
		s.finish(endpoint, method, "400", start)
		http.Error(w, "invalid view request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("content_id", req.ContentID))

	visitor := logic.VisitorFromRequest(r, s.GeoIP, s.TrustedProxies)
	views, err := s.Service.RecordView(ctx, req.ContentID, visitor)
	switch {
	case errors.Is(err, logic.ErrBotVisitor):
		s.finish(endpoint, method, "202", start)
		writeJSON(w, http.StatusAccepted, ViewResponse{Reason: "bot"})
		return
	case errors.Is(err, logic.ErrRateLimited):
		s.finish(endpoint, method, "202", start)
		writeJSON(w, http.StatusAccepted, ViewResponse{Reason: "rate_limited"})
		return
	case err != nil:
		// Views are best effort once the page has rendered.
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		logger.Warn("view not counted", zap.String("content_id", req.ContentID), zap.Error(err))
		s.finish(endpoint, method, "202", start)
		writeJSON(w, http.StatusAccepted, ViewResponse{Reason: "unavailable"})
		return
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("view", zap.String("content_id", req.ContentID), zap.Int64("views", views))
	}
	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, ViewResponse{Counted: true, Views: views})
}
