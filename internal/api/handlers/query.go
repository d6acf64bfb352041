package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
)

type QueryService interface {
	Ask(ctx context.Context, in service.AskInput) (*domain.QueryResult, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Debug    bool   `json:"debug"`
}

type CitationResponse struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Idx     int    `json:"idx"`
	Quote   string `json:"quote"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

type RetrievalResponse struct {
	ChunkID      string  `json:"chunk_id"`
	DocID        string  `json:"doc_id"`
	Idx          int     `json:"idx"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	TextPreview  string  `json:"text_preview"`
}

type QueryResponse struct {
	Question      string               `json:"question"`
	Answer        string               `json:"answer"`
	Refused       bool                 `json:"refused"`
	RefusalReason string               `json:"refusal_reason,omitempty"`
	Citations     []CitationResponse  `json:"citations"`
	Retrieval     []RetrievalResponse `json:"retrieval,omitempty"`
}

func queryResultToResponse(res *domain.QueryResult) QueryResponse {
	resp := QueryResponse{
		Question:      res.Question,
		Answer:        res.Answer,
		Refused:       res.Refused,
		RefusalReason: string(res.RefusalReason),
		Citations:     make([]CitationResponse, 0, len(res.Citations)),
	}
	for _, c := range res.Citations {
		resp.Citations = append(resp.Citations, CitationResponse{
			ChunkID: c.ChunkID,
			DocID:   c.DocID,
			Idx:     c.Idx,
			Quote:   c.Quote,
			Start:   c.Start,
			End:     c.End,
		})
	}
	for _, ev := range res.Retrieval {
		resp.Retrieval = append(resp.Retrieval, RetrievalResponse{
			ChunkID:      ev.ChunkID,
			DocID:        ev.DocID,
			Idx:          ev.Idx,
			Score:        ev.Score,
			LexicalScore: ev.LexicalScore,
			VectorScore:  ev.VectorScore,
			TextPreview:  ev.Snippet,
		})
	}
	return resp
}

// Ask answers a question within the caller's scope. Refusals are successful responses.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req QueryRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	result, err := h.svc.Ask(r.Context(), service.AskInput{
		Question: req.Question,
		Scope:    scope,
		TopK:     req.TopK,
		Debug:    req.Debug,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if result.Refused {
		middleware.NoteRefusal(r.Context(), string(result.RefusalReason))
	}

	api.Success(w, http.StatusOK, queryResultToResponse(result))
}
