package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/go-chi/chi/v5"
)

type DocumentService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	GetDocument(ctx context.Context, scope domain.AccessScope, docID string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, scope domain.AccessScope, docID string) error
	Lineage(ctx context.Context, scope domain.AccessScope, docID, cursor string, limit int) (*service.LineagePage, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// IngestRequest carries either text or base64 file_bytes. Contract may be a YAML/JSON
// string or an inline JSON object.
type IngestRequest struct {
	DocID          string          `json:"doc_id"`
	Title          string          `json:"title"`
	Source         string          `json:"source"`
	Text           string          `json:"text"`
	FileBytes      []byte          `json:"file_bytes"`
	Filename       string          `json:"filename"`
	ContentType    string          `json:"content_type"`
	Classification string          `json:"classification"`
	Retention      string          `json:"retention"`
	Tags           []string        `json:"tags"`
	Contract       json.RawMessage `json:"contract"`
}

type IngestResponse struct {
	DocID             string   `json:"doc_id"`
	NumChunks         int      `json:"num_chunks"`
	Changed           bool     `json:"changed"`
	DocVersion        int64    `json:"doc_version"`
	EmbeddingFallback bool     `json:"embedding_fallback,omitempty"`
	ValidationStatus  string   `json:"validation_status,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

type DocumentResponse struct {
	DocID          string   `json:"doc_id"`
	OrgID          string   `json:"org_id"`
	Title          string   `json:"title"`
	Source         string   `json:"source"`
	SourceType     string   `json:"source_type"`
	Classification string   `json:"classification"`
	Retention      string   `json:"retention"`
	ExpiresAt      string   `json:"expires_at,omitempty"`
	Tags           []string `json:"tags"`
	ContentSHA256  string   `json:"content_sha256"`
	ContentBytes   int64    `json:"content_bytes"`
	NumChunks      int      `json:"num_chunks"`
	DocVersion     int64    `json:"doc_version"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type IngestEventResponse struct {
	EventID           string   `json:"event_id"`
	DocID             string   `json:"doc_id"`
	DocVersion        int64    `json:"doc_version"`
	IngestedAt        string   `json:"ingested_at"`
	ContentSHA256     string   `json:"content_sha256"`
	PrevContentSHA256 string   `json:"prev_content_sha256,omitempty"`
	Changed           bool     `json:"changed"`
	NumChunks         int      `json:"num_chunks"`
	EmbeddingBackend  string   `json:"embedding_backend"`
	EmbeddingModel    string   `json:"embedding_model"`
	EmbeddingDim      int      `json:"embedding_dim"`
	EmbeddingFallback bool     `json:"embedding_fallback"`
	ChunkSize         int      `json:"chunk_size"`
	ChunkOverlap      int      `json:"chunk_overlap"`
	SchemaFingerprint string   `json:"schema_fingerprint,omitempty"`
	ContractSHA256    string   `json:"contract_sha256,omitempty"`
	ValidationStatus  string   `json:"validation_status,omitempty"`
	ValidationErrors  []string `json:"validation_errors"`
	SchemaDrifted     bool     `json:"schema_drifted"`
	Trigger           string   `json:"trigger"`
	ReplayRunID       string   `json:"replay_run_id,omitempty"`
}

type LineageResponse struct {
	Events  []*IngestEventResponse `json:"events"`
	Cursor  string                 `json:"cursor,omitempty"`
	HasMore bool                   `json:"has_more"`
}

var errInvalidContract = errors.New("contract must be a string or an object")

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		DocID:          d.ID,
		OrgID:          d.OrgID,
		Title:          d.Title,
		Source:         d.Source,
		SourceType:     string(d.SourceType),
		Classification: string(d.Classification),
		Retention:      d.Retention,
		Tags:           d.Tags,
		ContentSHA256:  d.ContentSHA256,
		ContentBytes:   d.ContentBytes,
		NumChunks:      d.NumChunks,
		DocVersion:     d.Version,
		CreatedAt:      formatTime(d.CreatedAt),
		UpdatedAt:      formatTime(d.UpdatedAt),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if d.ExpiresAt != nil {
		resp.ExpiresAt = formatTime(*d.ExpiresAt)
	}
	return resp
}

func eventToResponse(e *domain.IngestEvent) *IngestEventResponse {
	resp := &IngestEventResponse{
		EventID:           e.ID,
		DocID:             e.DocID,
		DocVersion:        e.DocVersion,
		IngestedAt:        formatTime(e.IngestedAt),
		ContentSHA256:     e.ContentSHA256,
		PrevContentSHA256: e.PrevContentSHA256,
		Changed:           e.Changed,
		NumChunks:         e.NumChunks,
		EmbeddingBackend:  e.EmbeddingBackend,
		EmbeddingModel:    e.EmbeddingModel,
		EmbeddingDim:      e.EmbeddingDim,
		EmbeddingFallback: e.EmbeddingFallback,
		ChunkSize:         e.ChunkSize,
		ChunkOverlap:      e.ChunkOverlap,
		SchemaFingerprint: e.SchemaFingerprint,
		ContractSHA256:    e.ContractSHA256,
		ValidationStatus:  string(e.ValidationStatus),
		ValidationErrors:  e.ValidationErrors,
		SchemaDrifted:     e.SchemaDrifted,
		Trigger:           string(e.Trigger),
		ReplayRunID:       e.ReplayRunID,
	}
	if resp.ValidationErrors == nil {
		resp.ValidationErrors = []string{}
	}
	return resp
}

// contractBytes unwraps a JSON string contract to its text; objects pass through as JSON,
// which the contract parser reads as YAML.
func contractBytes(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	case '{':
		return raw, nil
	default:
		return nil, errInvalidContract
	}
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IngestRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}

	if req.Text != "" && len(req.FileBytes) > 0 {
		api.Error(w, http.StatusBadRequest, "text and file_bytes are mutually exclusive")
		return
	}
	data := req.FileBytes
	if req.Text != "" {
		data = []byte(req.Text)
	}
	if len(data) == 0 {
		api.Error(w, http.StatusBadRequest, "text or file_bytes is required")
		return
	}

	contract, err := contractBytes(req.Contract)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "contract must be a string or an object")
		return
	}

	result, err := h.svc.Ingest(r.Context(), service.IngestInput{
		OrgID:          orgID,
		DocID:          req.DocID,
		Title:          req.Title,
		Source:         req.Source,
		Data:           data,
		Filename:       req.Filename,
		ContentType:    req.ContentType,
		Classification: req.Classification,
		Retention:      req.Retention,
		Tags:           req.Tags,
		Contract:       contract,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusOK
	if result.Changed {
		status = http.StatusCreated
	}
	api.Success(w, status, IngestResponse{
		DocID:             result.DocID,
		NumChunks:         result.NumChunks,
		Changed:           result.Changed,
		DocVersion:        result.DocVersion,
		EmbeddingFallback: result.EmbeddingFallback,
		ValidationStatus:  string(result.ValidationStatus),
		Warnings:          result.Warnings,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.svc.Lineage(r.Context(), scope, chi.URLParam(r, "id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	events := make([]*IngestEventResponse, 0, len(page.Items))
	for _, ev := range page.Items {
		events = append(events, eventToResponse(ev))
	}
	api.Success(w, http.StatusOK, LineageResponse{
		Events:  events,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}
