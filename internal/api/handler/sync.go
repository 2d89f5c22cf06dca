package handler

import (
	"net/http"

	"github.com/mcoot/clanadmin/internal/api/request"
	"github.com/mcoot/clanadmin/internal/api/response"
	"github.com/mcoot/clanadmin/internal/scheduler"
	"github.com/mcoot/clanadmin/internal/services/clansync"
)

// RunHandler handles the batch job endpoints
type RunHandler struct {
	runner *scheduler.Runner
}

// NewRunHandler creates a new run handler
func NewRunHandler(runner *scheduler.Runner) *RunHandler {
	return &RunHandler{runner: runner}
}

// Health handles GET /api/v1/health
func (h *RunHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{
		Status:  "ok",
		Running: h.runner.Running(),
	})
}

// Sync handles POST /api/v1/sync
// An empty body is a dry run.
func (h *RunHandler) Sync(w http.ResponseWriter, r *http.Request) {
	req := request.SyncRequest{DryRun: true}
	if err := decodeBody(w, r, &req, true); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.runner.Sync(r.Context(), clansync.Options{DryRun: req.DryRun, Force: req.Force})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SyncResultFromResult(result))
}

// Inactivity handles POST /api/v1/inactivity
func (h *RunHandler) Inactivity(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Inactivity(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.InactivityResultFromResult(result))
}
