package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
)

type AuthService interface {
	CreateOrg(ctx context.Context, name string) (*domain.Organization, error)
	CreateAPIKey(ctx context.Context, orgID, name string, opts service.KeyOptions) (string, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type CreateOrgRequest struct {
	Name string `json:"name"`
}

type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	Clearance string `json:"clearance"`
	CanIngest bool   `json:"can_ingest"`
}

type APIKeyResponse struct {
	Token     string `json:"token"`
	Name      string `json:"name"`
	Clearance string `json:"clearance"`
	CanIngest bool   `json:"can_ingest"`
}

// PrincipalResponse describes the calling key and what it can read.
type PrincipalResponse struct {
	KeyID     string   `json:"key_id"`
	Name      string   `json:"name"`
	OrgID     string   `json:"org_id"`
	Clearance string   `json:"clearance"`
	Visible   []string `json:"visible_classifications"`
	CanIngest bool     `json:"can_ingest"`
	CreatedAt string   `json:"created_at"`
}

func (h *AuthHandler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := h.svc.CreateOrg(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, OrgResponse{
		ID:        org.ID,
		Name:      org.Name,
		CreatedAt: formatTime(org.CreatedAt),
	})
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}

	if req.OrgID == "" {
		api.Error(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	opts := service.KeyOptions{Clearance: req.Clearance, CanIngest: req.CanIngest}
	token, err := h.svc.CreateAPIKey(r.Context(), req.OrgID, req.Name, opts)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	clearance, _ := domain.NormalizeClassification(req.Clearance)
	api.Success(w, http.StatusCreated, APIKeyResponse{
		Token:     token,
		Name:      req.Name,
		Clearance: string(clearance),
		CanIngest: req.CanIngest,
	})
}

func (h *AuthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	key := middleware.GetPrincipal(r.Context())
	if key == nil {
		api.Error(w, http.StatusUnauthorized, "missing API key")
		return
	}

	api.Success(w, http.StatusOK, PrincipalResponse{
		KeyID:     key.ID,
		Name:      key.Name,
		OrgID:     key.OrgID,
		Clearance: string(key.Clearance),
		Visible:   domain.VisibleClassifications(key.Clearance),
		CanIngest: key.CanIngest,
		CreatedAt: formatTime(key.CreatedAt),
	})
}
