// Package api exposes the draft control and read surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/livedraft/internal/app"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/logger"
)

// Drafts is the service surface the handlers need.
type Drafts interface {
	Start(ctx context.Context, spec service.DraftSpec) (service.Status, error)
	Stop(ctx context.Context, draftID string) error
	Pause(ctx context.Context, draftID string) (service.Status, error)
	Resume(ctx context.Context, draftID string) (service.Status, error)
	Status(draftID string) (service.Status, error)
	List() []service.Status
	State(draftID string) (model.LeagueState, error)
	Resources(draftID string) (model.LeagueResources, error)
	Valuations(ctx context.Context, draftID string) (model.ValuationSet, error)
	Snapshots(ctx context.Context, draftID string) ([]int, error)
	Snapshot(ctx context.Context, draftID string, pick int) (model.ValuationSet, error)
}

// Server wires HTTP routes for the draft API.
type Server struct {
	healthHandler *HealthHandler
	draftsHandler *DraftsHandler
	log           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(drafts Drafts, log logger.Logger) *Server {
	if log == nil {
		log = logger.Get().Named("api")
	}
	return &Server{
		healthHandler: NewHealthHandler(drafts),
		draftsHandler: NewDraftsHandler(drafts),
		log:           log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, Chain(h,
			RequestID(),
			RecoverPanic(s.log),
			LoggingMiddleware(s.log),
			MetricsMiddleware(endpoint),
		))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())

	route("POST /drafts", "drafts_start", s.draftsHandler.HandleStart)
	route("GET /drafts", "drafts_list", s.draftsHandler.HandleList)
	route("POST /drafts/{id}/stop", "drafts_stop", s.draftsHandler.HandleStop)
	route("POST /drafts/{id}/pause", "drafts_pause", s.draftsHandler.HandlePause)
	route("POST /drafts/{id}/resume", "drafts_resume", s.draftsHandler.HandleResume)
	route("GET /drafts/{id}/status", "drafts_status", s.draftsHandler.HandleStatus)
	route("GET /drafts/{id}/state", "drafts_state", s.draftsHandler.HandleState)
	route("GET /drafts/{id}/resources", "drafts_resources", s.draftsHandler.HandleResources)
	route("GET /drafts/{id}/valuations", "drafts_valuations", s.draftsHandler.HandleValuations)
	route("GET /drafts/{id}/snapshots", "drafts_snapshots", s.draftsHandler.HandleSnapshots)
	route("GET /drafts/{id}/snapshots/{pick}", "drafts_snapshot", s.draftsHandler.HandleSnapshot)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err)
	case errors.Is(err, service.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrServiceClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err)
	case errors.Is(err, service.ErrHalted):
		writeError(w, http.StatusConflict, "halted", err)
	case errors.Is(err, service.ErrNotRunning):
		writeError(w, http.StatusConflict, "not_running", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
