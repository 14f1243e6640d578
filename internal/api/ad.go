package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/service"
)

type adResponse struct {
	models.AdResponse
	Debug *logic.SelectionTrace `json:"debug,omitempty"`
}

// GetAdHandler handles GET /ad?position=... for server-rendered pages.
// An empty slot is answered with 204.
func (s *Server) GetAdHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "GetAdHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/ad"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/ad"
	const method = "GET"

	position := strings.TrimSpace(r.URL.Query().Get("position"))
	if position == "" {
		s.finish(endpoint, method, "400", start)
		http.Error(w, "position required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("position", position))

	var selTrace *logic.SelectionTrace
	if s.DebugTrace || r.URL.Query().Get("trace") == "1" {
		selTrace = &logic.SelectionTrace{}
	}

	ctx = service.WithVisitor(ctx, logic.VisitorFromRequest(r, s.GeoIP, s.TrustedProxies))
	ad, err := s.Service.SelectAdTraced(ctx, position, selTrace)
	if err != nil {
		// Never break the page over an ad.
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		logger.Warn("ad selection failed", zap.String("position", position), zap.Error(err))
		s.finish(endpoint, method, "204", start)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if ad == nil {
		s.finish(endpoint, method, "204", start)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	span.SetAttributes(attribute.String("ad_id", ad.ID))

	resp := adResponse{
		AdResponse: models.AdResponse{
			ID:       ad.ID,
			Position: ad.Position,
			Title:    ad.Title,
			ImageURL: ad.ImageURL,
		},
		Debug: selTrace,
	}
	if tok, err := s.Signer.Sign(ad.ID, ad.Position, middleware.RequestID(ctx)); err != nil {
		logger.Error("sign click token", zap.String("ad_id", ad.ID), zap.Error(err))
	} else {
		resp.ClickURL = "/click?t=" + url.QueryEscape(tok)
	}

	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, resp)
}
