package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/counter"
	"github.com/patrickwarner/portalmetrics/internal/middleware"
	"github.com/patrickwarner/portalmetrics/internal/models"
)

// CounterResponse is the value of one counter.
type CounterResponse struct {
	EntityID string        `json:"entity_id"`
	Metric   models.Metric `json:"metric"`
	Value    int64         `json:"value"`
}

// statusClientClosedRequest is nginx's code for a client that went away
// before the response was written.
const statusClientClosedRequest = 499

// counterStatus maps counter errors to HTTP status codes.
func counterStatus(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, counter.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, counter.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func logCounterError(logger *zap.Logger, code int, msg, entityID string, err error) {
	switch code {
	case http.StatusBadRequest:
	case statusClientClosedRequest:
		logger.Debug(msg, zap.String("entity_id", entityID), zap.Error(err))
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		logger.Warn(msg, zap.String("entity_id", entityID), zap.Error(err))
	default:
		logger.Error(msg, zap.String("entity_id", entityID), zap.Error(err))
	}
}

// IncrementCounterHandler handles POST /api/counters with an
// IncrementCommand body.
func (s *Server) IncrementCounterHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/api/counters"
	const method = "POST"

	logger := middleware.LoggerFromRequest(r, s.Logger)

	var cmd counter.IncrementCommand
	body, err := io.ReadAll(io.LimitReader(r.Body, maxViewBody))
	if err == nil {
		err = json.Unmarshal(body, &cmd)
	}
	if err != nil {
		s.finish(endpoint, method, "400", start)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	value, err := s.Service.IncrementCounter(r.Context(), cmd.EntityID, cmd.Metric, cmd.Delta)
	if err != nil {
		code := counterStatus(err)
		logCounterError(logger, code, "increment counter", cmd.EntityID, err)
		s.finish(endpoint, method, strconv.Itoa(code), start)
		http.Error(w, err.Error(), code)
		return
	}

	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, CounterResponse{EntityID: cmd.EntityID, Metric: cmd.Metric, Value: value})
}

// ReadCounterHandler handles GET /api/counters/{metric}/{id}.
func (s *Server) ReadCounterHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/api/counters/{metric}/{id}"
	const method = "GET"

	vars := mux.Vars(r)
	metric, err := models.ParseMetric(vars["metric"])
	if err != nil {
		s.finish(endpoint, method, "400", start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := vars["id"]

	value, err := s.Service.ReadCounter(r.Context(), id, metric)
	if err != nil {
		code := counterStatus(err)
		logCounterError(middleware.LoggerFromRequest(r, s.Logger), code, "read counter", id, err)
		s.finish(endpoint, method, strconv.Itoa(code), start)
		http.Error(w, err.Error(), code)
		return
	}

	s.finish(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, CounterResponse{EntityID: id, Metric: metric, Value: value})
}
