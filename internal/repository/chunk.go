package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/service"
)

// ChunkRepository implements the vector store contract: delete-by-source,
// bulk insert and nearest-neighbor search over the chunks table.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// DeleteBySourceID removes all chunks for one source document. Deleting a
// source that has no chunks is not an error.
func (r *ChunkRepository) DeleteBySourceID(ctx context.Context, sourceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID)
	return err
}

// BulkInsert writes all chunks in one transaction and returns the count
// written. Chunks are never partially visible: either the whole set lands or
// none of it does.
func (r *ChunkRepository) BulkInsert(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO chunks
				(id, tenant_id, source_type, source_id, title, chunk_index, content, embedding, metadata, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID,
			nullableString(c.TenantID),
			c.SourceType,
			c.SourceID,
			c.Title,
			c.ChunkIndex,
			c.Content,
			pgvector.NewVector(c.Embedding),
			c.Metadata,
			createdAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, err
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// SearchByEmbedding runs the nearest-neighbor query. Rows are scoped to the
// given tenant plus globally visible (null tenant) rows, filtered by the
// minimum similarity, ordered by similarity descending.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, tenantID string, matchCount int, matchThreshold float32) ([]*service.SearchResult, error) {
	if matchCount <= 0 {
		matchCount = 10
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, source_type, source_id, title, chunk_index, content, metadata,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE (tenant_id IS NULL OR tenant_id = $2)
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, nullableString(tenantID), matchThreshold, matchCount,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.SearchResult, 0)
	for rows.Next() {
		var result service.SearchResult
		var tenant pgtype.Text
		var metadata map[string]string
		if err := rows.Scan(
			&result.ChunkID,
			&tenant,
			&result.SourceType,
			&result.SourceID,
			&result.Title,
			&result.ChunkIndex,
			&result.Content,
			&metadata,
			&result.Similarity,
		); err != nil {
			return nil, err
		}
		if tenant.Valid {
			result.TenantID = tenant.String
		}
		result.Metadata = metadata
		results = append(results, &result)
	}

	return results, rows.Err()
}
