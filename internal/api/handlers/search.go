package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tpelligrinomid/midrag/internal/api"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query          string   `json:"query"`
	MatchCount     int      `json:"match_count"`
	MatchThreshold float32  `json:"match_threshold"`
	SourceTypes    []string `json:"source_types"`
}

type SearchResultResponse struct {
	ChunkID    string            `json:"chunk_id"`
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Title      string            `json:"title"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity"`
}

type SearchResponse struct {
	Results []SearchResultResponse `json:"results"`
}

// Search handles POST /search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	sourceTypes := make([]domain.SourceType, 0, len(req.SourceTypes))
	for _, st := range req.SourceTypes {
		sourceType := domain.SourceType(st)
		if !domain.IsValidSourceType(sourceType) {
			api.Error(w, http.StatusBadRequest, "invalid source type")
			return
		}
		sourceTypes = append(sourceTypes, sourceType)
	}

	results, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:          req.Query,
		TenantID:       middleware.GetTenantID(r.Context()),
		MatchCount:     req.MatchCount,
		MatchThreshold: req.MatchThreshold,
		SourceTypes:    sourceTypes,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Results: make([]SearchResultResponse, len(results))}
	for i, result := range results {
		resp.Results[i] = SearchResultResponse{
			ChunkID:    result.ChunkID,
			SourceType: string(result.SourceType),
			SourceID:   result.SourceID,
			Title:      result.Title,
			ChunkIndex: result.ChunkIndex,
			Content:    result.Content,
			Metadata:   result.Metadata,
			Similarity: result.Similarity,
		}
	}

	api.Success(w, http.StatusOK, resp)
}
