package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/dispatch"
	"github.com/micro-nova/flick-go/internal/models"
)

func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.node.Status())
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Snapshot())
}

// putConfig replaces the shared snapshot. Fields missing from the body keep
// their current values; revision and origin are always assigned locally.
func (h *Handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	snap := h.config.Snapshot()
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	if err := config.Normalize(&snap); err != nil {
		writeError(w, &models.AppError{Code: "BAD_REQUEST", Message: err.Error(), Field: "playbackMethod", Status: http.StatusBadRequest})
		return
	}
	writeJSON(w, http.StatusOK, h.config.Publish(snap))
}

func (h *Handlers) postCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := models.ParseCommand(chi.URLParam(r, "cmd"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.node.Command(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Outcome != dispatch.OutcomeExecuted.String() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

type authorizeRequest struct {
	Token string `json:"token"`
}

func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	if req.Token == "" {
		writeError(w, &models.AppError{Code: "BAD_REQUEST", Message: "token is required", Field: "token", Status: http.StatusBadRequest})
		return
	}
	if err := h.auth.Authorize(req.Token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.node.Status())
}

func (h *Handlers) deauthorize(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Deauthorize(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.node.Status())
}

func (h *Handlers) reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Reconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.node.Status())
}
