package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse lists the state of each backend.
type HealthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
	Ads      int               `json:"ads"`
}

// HealthHandler reports "ok" while every configured backend answers a ping,
// and "degraded" otherwise. The service keeps serving in both cases.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Backends: map[string]string{}}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			resp.Backends[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Backends[name] = "ok"
	}
	if s.Store != nil {
		check("redis", s.Store.Ping)
	}
	if s.PG != nil {
		check("postgres", s.PG.Ping)
	}
	if s.Catalog != nil {
		resp.Ads = s.Catalog.Len()
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}
