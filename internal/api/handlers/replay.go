package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/go-chi/chi/v5"
)

type ReplayService interface {
	Replay(ctx context.Context, in service.ReplayInput) (*domain.ReplayRun, error)
	Get(ctx context.Context, orgID, runID string) (*domain.ReplayRun, error)
}

type ReplayHandler struct {
	svc ReplayService
}

func NewReplayHandler(svc ReplayService) *ReplayHandler {
	return &ReplayHandler{svc: svc}
}

type ReplayRequest struct {
	DocID string `json:"doc_id"`
	RunID string `json:"run_id"`
	Force bool   `json:"force"`
	Async bool   `json:"async"`
}

type ReplayRunResponse struct {
	RunID      string `json:"run_id"`
	DocID      string `json:"doc_id,omitempty"`
	Force      bool   `json:"force"`
	Status     string `json:"status"`
	Scanned    int    `json:"scanned"`
	Changed    int    `json:"changed"`
	Unchanged  int    `json:"unchanged"`
	Errored    int    `json:"errored"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func replayRunToResponse(run *domain.ReplayRun) *ReplayRunResponse {
	resp := &ReplayRunResponse{
		RunID:     run.ID,
		DocID:     run.DocID,
		Force:     run.Force,
		Status:    string(run.Status),
		Scanned:   run.Scanned,
		Changed:   run.Changed,
		Unchanged: run.Unchanged,
		Errored:   run.Errored,
		Error:     run.Error,
		CreatedAt: formatTime(run.CreatedAt),
	}
	if run.StartedAt != nil {
		resp.StartedAt = formatTime(*run.StartedAt)
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = formatTime(*run.FinishedAt)
	}
	return resp
}

// Create starts a replay. Requires ingest rights; an empty body replays the whole organization.
func (h *ReplayHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ReplayRequest
	if !api.DecodeJSON(w, r, &req, true) {
		return
	}

	run, err := h.svc.Replay(r.Context(), service.ReplayInput{
		OrgID: orgID,
		DocID: req.DocID,
		RunID: req.RunID,
		Force: req.Force,
		Async: req.Async,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusOK
	if run.Status == domain.ReplayStatusPending {
		status = http.StatusAccepted
	}
	api.Success(w, status, replayRunToResponse(run))
}

func (h *ReplayHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	run, err := h.svc.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, replayRunToResponse(run))
}
