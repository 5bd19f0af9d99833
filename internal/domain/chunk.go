package domain

import "time"

// SourceType identifies the kind of document a chunk was derived from.
type SourceType string

const (
	SourceTypeNote         SourceType = "note"
	SourceTypeMeeting      SourceType = "meeting"
	SourceTypeDeliverable  SourceType = "deliverable"
	SourceTypeContentAsset SourceType = "content_asset"
)

// IsValidSourceType checks if a SourceType is one of the known values.
func IsValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeNote, SourceTypeMeeting, SourceTypeDeliverable, SourceTypeContentAsset:
		return true
	}
	return false
}

// ChunkCandidate is the chunker's output before embedding: content, position
// and chunker-derived metadata (e.g. the active section heading).
type ChunkCandidate struct {
	Content    string
	ChunkIndex int
	Metadata   map[string]string
}

// Chunk is the atomic retrievable unit persisted in the vector store.
// TenantID is empty for globally visible content. Chunks are immutable once
// written; re-ingestion replaces the full set for a source_id.
type Chunk struct {
	ID         string
	TenantID   string
	SourceType SourceType
	SourceID   string
	Title      string
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// ValidateChunk validates a Chunk before persistence.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return ErrMissingRequiredField
	}
	if c.SourceID == "" {
		return ErrMissingRequiredField
	}
	if c.Content == "" {
		return ErrEmptyChunkContent
	}
	if c.ChunkIndex < 0 {
		return ErrInvalidChunkIndex
	}
	if !IsValidSourceType(c.SourceType) {
		return ErrInvalidSourceType
	}
	if len(c.Embedding) == 0 {
		return ErrMissingEmbedding
	}
	return nil
}
