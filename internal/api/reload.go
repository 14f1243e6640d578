package api

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/middleware"
)

// ReloadHandler handles POST /reload: the ad catalog is re-read from
// Postgres and the other instances are told to follow.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ReloadHandler")
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/reload"
	const method = "POST"

	if err := s.Reload(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		logger.Error("reload failed", zap.Error(err))
		s.finish(endpoint, method, "500", start)
		http.Error(w, "reload failed", http.StatusInternalServerError)
		return
	}

	logger.Info("ad catalog reloaded", zap.Int("ads", s.Catalog.Len()))
	s.finish(endpoint, method, "204", start)
	w.WriteHeader(http.StatusNoContent)
}
