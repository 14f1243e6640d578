package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/geoip"
	"github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/macros"
	"github.com/patrickwarner/portalmetrics/internal/observability"
	"github.com/patrickwarner/portalmetrics/internal/service"
	"github.com/patrickwarner/portalmetrics/internal/token"
)

var tracer = observability.Tracer("api")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger         *zap.Logger
	Service        *service.Service
	Catalog        *db.AdCatalog
	Store          *db.RedisStore
	PG             *db.Postgres
	GeoIP          *geoip.GeoIP
	Signer         *token.Signer
	Macros         *macros.Expander
	Metrics        observability.MetricsRegistry
	Config         config.Config
	DebugTrace     bool
	TrustedProxies logic.TrustedProxies // peers whose X-Forwarded-For is believed
	reloadMu       sync.Mutex
}

// NewServer constructs a Server. Store, PG and GeoIP may be nil.
func NewServer(logger *zap.Logger, svc *service.Service, catalog *db.AdCatalog, store *db.RedisStore, pg *db.Postgres, geo *geoip.GeoIP, signer *token.Signer, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:  logger,
		Service: svc,
		Catalog: catalog,
		Store:   store,
		PG:      pg,
		GeoIP:   geo,
		Signer:  signer,
		Macros:  macros.NewExpander(logger, metrics),
		Metrics: metrics,
		Config:  cfg,
	}
}

// Routes registers the handlers on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/view", s.ViewHandler).Methods("POST")
	r.HandleFunc("/ad", s.GetAdHandler).Methods("GET")
	r.HandleFunc("/click", s.ClickHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")

	admin := r.PathPrefix("/api").Subrouter()
	admin.HandleFunc("/counters", s.IncrementCounterHandler).Methods("POST")
	admin.HandleFunc("/counters/{metric}/{id}", s.ReadCounterHandler).Methods("GET")
	admin.HandleFunc("/reports", s.ReportHandler).Methods("GET")
	admin.HandleFunc("/reports/ads", s.AdReportHandler).Methods("GET")
}

// Reload refreshes the ad catalog from Postgres and tells the other
// instances to do the same.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Catalog == nil {
		return fmt.Errorf("ad catalog unavailable")
	}
	if err := s.Catalog.Reload(ctx); err != nil {
		return fmt.Errorf("reload ads: %w", err)
	}
	s.notifyReload(ctx, "ads")
	return nil
}

func (s *Server) notifyReload(ctx context.Context, entity string) {
	if s.Store == nil {
		s.Logger.Warn("redis store not available, skipping reload notification")
		return
	}
	msg := db.ReloadMessage{Entity: entity, Reason: "api"}
	if err := s.Store.PublishReload(ctx, msg); err != nil {
		s.Logger.Error("failed to publish reload message", zap.Error(err))
	}
}

func (s *Server) finish(endpoint, method, status string, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, status)
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
