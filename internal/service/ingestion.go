package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/telemetry"
)

// ChunkStore is the vector store mutation contract consumed by ingestion.
type ChunkStore interface {
	DeleteBySourceID(ctx context.Context, sourceID string) error
	BulkInsert(ctx context.Context, chunks []domain.Chunk) (int, error)
}

// SourceArchive optionally keeps a copy of the raw document before chunking.
type SourceArchive interface {
	ArchiveSource(ctx context.Context, tenantID, sourceID, content string) error
}

// IngestInput describes one source document to ingest.
type IngestInput struct {
	TenantID   string
	SourceType domain.SourceType
	SourceID   string
	Title      string
	Content    string
	Metadata   map[string]string
}

// IngestionService orchestrates chunk -> embed -> store for one source
// document. Re-ingesting the same source_id replaces its chunk set wholesale.
type IngestionService struct {
	embedding EmbeddingClient
	store     ChunkStore
	archive   SourceArchive
	chunkOpts ChunkOptions
}

func NewIngestionService(embedding EmbeddingClient, store ChunkStore, opts ChunkOptions) *IngestionService {
	return NewIngestionServiceWithArchive(embedding, store, nil, opts)
}

func NewIngestionServiceWithArchive(embedding EmbeddingClient, store ChunkStore, archive SourceArchive, opts ChunkOptions) *IngestionService {
	return &IngestionService{
		embedding: embedding,
		store:     store,
		archive:   archive,
		chunkOpts: opts.withDefaults(),
	}
}

// Ingest returns the number of chunks written. Empty content returns 0
// without touching the store, so a blanked document must be removed through
// the source's own deletion flow, not by re-ingesting nothing.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		SourceID:  input.SourceID,
		Operation: "ingest",
	})
	defer span.End()

	if strings.TrimSpace(input.Content) == "" {
		return 0, nil
	}
	if input.SourceID == "" {
		return 0, domain.ErrMissingRequiredField
	}
	if !domain.IsValidSourceType(input.SourceType) {
		return 0, domain.ErrInvalidSourceType
	}

	if s.archive != nil {
		// Archival is best-effort; a cold-storage failure never blocks ingestion.
		if err := s.archive.ArchiveSource(ctx, input.TenantID, input.SourceID, input.Content); err != nil {
			log.Printf("archive failed for source %s: %v", input.SourceID, err)
		}
	}

	if err := s.store.DeleteBySourceID(ctx, input.SourceID); err != nil {
		return 0, fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	candidates := Chunk(input.Content, s.chunkOpts)
	if len(candidates) == 0 {
		return 0, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	embeddings, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			TenantID:   input.TenantID,
			SourceType: input.SourceType,
			SourceID:   input.SourceID,
			Title:      input.Title,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Embedding:  embeddings[i],
			Metadata:   mergeMetadata(input.Metadata, c.Metadata),
			CreatedAt:  now,
		}
		if err := domain.ValidateChunk(&chunks[i]); err != nil {
			return 0, fmt.Errorf("chunk %d failed validation: %w", i, err)
		}
	}

	count, err := s.store.BulkInsert(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunks: %w", err)
	}
	return count, nil
}

// mergeMetadata overlays chunk-derived keys on top of caller metadata;
// chunk-derived keys win on collision.
func mergeMetadata(caller, chunk map[string]string) map[string]string {
	merged := make(map[string]string, len(caller)+len(chunk))
	for k, v := range caller {
		merged[k] = v
	}
	for k, v := range chunk {
		merged[k] = v
	}
	return merged
}
