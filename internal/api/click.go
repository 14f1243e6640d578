package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/macros"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/observability"
	"github.com/patrickwarner/portalmetrics/internal/service"
	"github.com/patrickwarner/portalmetrics/internal/token"
)

// ClickHandler handles GET /click?t=... and redirects to the creative's link.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/click"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/click"
	const method = "GET"

	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.finish(endpoint, method, "401", start)
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := s.Signer.Verify(tok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		msg := "invalid token"
		if errors.Is(err, token.ErrExpired) {
			msg = "token expired"
		}
		s.finish(endpoint, method, "401", start)
		http.Error(w, msg, http.StatusUnauthorized)
		return
	}
	span.SetAttributes(
		attribute.String("ad_id", claims.AdID),
		attribute.String("position", claims.Position),
		attribute.String("request_id", claims.RequestID),
	)

	visitor := logic.VisitorFromRequest(r, s.GeoIP, s.TrustedProxies)
	ctx = service.WithVisitor(ctx, visitor)
	if err := s.Service.RecordClick(ctx, claims.AdID); err != nil {
		// Still send the visitor on; only the count is lost.
		span.RecordError(err)
		if errors.Is(err, counter.ErrStoreUnavailable) {
			logger.Warn("click not counted", zap.String("ad_id", claims.AdID), zap.Error(err))
		} else {
			logger.Error("record click", zap.String("ad_id", claims.AdID), zap.Error(err))
		}
	} else if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("click", zap.String("ad_id", claims.AdID), zap.String("request_id", claims.RequestID))
	}

	dest := s.destination(&macros.ClickContext{
		AdID:       claims.AdID,
		Position:   claims.Position,
		RequestID:  claims.RequestID,
		Country:    visitor.Country,
		DeviceType: visitor.DeviceType,
		Timestamp:  start,
	})
	if dest == "" {
		s.finish(endpoint, method, "204", start)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.finish(endpoint, method, "302", start)
	http.Redirect(w, r, dest, http.StatusFound)
}

// destination returns the creative's link with macros expanded, provided it
// is a safe http(s) URL.
func (s *Server) destination(cc *macros.ClickContext) string {
	if s.Catalog == nil {
		return ""
	}
	ad, ok := s.Catalog.Find(cc.AdID)
	if !ok || ad.LinkURL == "" {
		return ""
	}
	link := ad.LinkURL
	if s.Macros != nil {
		expanded, err := s.Macros.Expand(link, cc)
		if err != nil {
			s.Logger.Warn("expand destination macros", zap.String("ad_id", cc.AdID), zap.Error(err))
		} else {
			link = expanded
		}
	}
	u, err := url.Parse(link)
	if err != nil {
		s.Logger.Warn("invalid destination URL", zap.String("ad_id", cc.AdID), zap.String("url", link), zap.Error(err))
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		s.Logger.Warn("unsafe destination URL scheme", zap.String("ad_id", cc.AdID), zap.String("scheme", u.Scheme))
		return ""
	}
	return u.String()
}
