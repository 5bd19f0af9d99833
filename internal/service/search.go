package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/telemetry"
)

const (
	// DefaultMatchCount caps how many chunks one search returns.
	DefaultMatchCount = 10
	// DefaultMatchThreshold is the minimum similarity a hit must clear.
	DefaultMatchThreshold = 0.7
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult is one ranked retrieval hit from the vector store.
type SearchResult struct {
	ChunkID    string
	TenantID   string
	SourceType domain.SourceType
	SourceID   string
	Title      string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// ChunkSearcher is the vector store's nearest-neighbor query contract.
type ChunkSearcher interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, tenantID string, matchCount int, matchThreshold float32) ([]*SearchResult, error)
}

// SearchInput parameterizes one similarity search.
type SearchInput struct {
	Query          string
	TenantID       string
	MatchCount     int
	MatchThreshold float32
	// SourceTypes filters results client-side after retrieval; nil means all.
	SourceTypes []domain.SourceType
}

// SearchService embeds a query and retrieves the nearest stored chunks,
// scoped to the caller's tenant plus globally visible content.
type SearchService struct {
	embedding EmbeddingClient
	repo      ChunkSearcher
}

func NewSearchService(embedding EmbeddingClient, repo ChunkSearcher) *SearchService {
	return &SearchService{embedding: embedding, repo: repo}
}

// Search returns ranked hits, similarity descending. Zero matches is a valid
// outcome, not an error.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		Operation: "search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return []*SearchResult{}, nil
	}

	matchCount := input.MatchCount
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}
	threshold := input.MatchThreshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	embedding, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.repo.SearchByEmbedding(ctx, embedding, input.TenantID, matchCount, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if len(input.SourceTypes) == 0 {
		return results, nil
	}

	allowed := make(map[domain.SourceType]bool, len(input.SourceTypes))
	for _, t := range input.SourceTypes {
		allowed[t] = true
	}
	filtered := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if allowed[r.SourceType] {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
