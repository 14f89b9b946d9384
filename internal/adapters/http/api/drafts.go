package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/livedraft/internal/adapters/cache"
	service "github.com/okian/livedraft/internal/app"
)

const maxSpecBytes = 1 << 16

// DraftsHandler serves the draft lifecycle and read routes.
type DraftsHandler struct {
	drafts Drafts
}

// NewDraftsHandler creates a new drafts handler.
func NewDraftsHandler(drafts Drafts) *DraftsHandler {
	return &DraftsHandler{drafts: drafts}
}

type listResponse struct {
	Drafts []service.Status `json:"drafts"`
}

type snapshotsResponse struct {
	DraftID string `json:"draft_id"`
	Picks   []int  `json:"picks"`
}

// HandleStart handles POST /drafts.
func (h *DraftsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var spec service.DraftSpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpecBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	st, err := h.drafts.Start(r.Context(), spec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// HandleList handles GET /drafts.
func (h *DraftsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Drafts: h.drafts.List()})
}

// HandleStop handles POST /drafts/{id}/stop.
func (h *DraftsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.drafts.Stop(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePause handles POST /drafts/{id}/pause.
func (h *DraftsHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	st, err := h.drafts.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleResume handles POST /drafts/{id}/resume.
func (h *DraftsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	st, err := h.drafts.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleStatus handles GET /drafts/{id}/status.
func (h *DraftsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.drafts.Status(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleState handles GET /drafts/{id}/state.
func (h *DraftsHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.drafts.State(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleResources handles GET /drafts/{id}/resources.
func (h *DraftsHandler) HandleResources(w http.ResponseWriter, r *http.Request) {
	res, err := h.drafts.Resources(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleValuations handles GET /drafts/{id}/valuations. Before the first
// recompute lands there is nothing to serve.
func (h *DraftsHandler) HandleValuations(w http.ResponseWriter, r *http.Request) {
	set, err := h.drafts.Valuations(r.Context(), r.PathValue("id"))
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_computed", err)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// HandleSnapshots handles GET /drafts/{id}/snapshots.
func (h *DraftsHandler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	picks, err := h.drafts.Snapshots(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotsResponse{DraftID: id, Picks: picks})
}

// HandleSnapshot handles GET /drafts/{id}/snapshots/{pick}.
func (h *DraftsHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	pick, err := strconv.Atoi(r.PathValue("pick"))
	if err != nil || pick < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadPick)
		return
	}
	set, err := h.drafts.Snapshot(r.Context(), r.PathValue("id"), pick)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}
