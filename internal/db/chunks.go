package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/HanTheDev/onboard-assistant/internal/chunkstore"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ chunkstore.Store = (*ChunkStore)(nil)

// hnsw.ef_search upper bound accepted by pgvector
const maxEfSearch = 1000

// ChunkStore keeps chunk vectors in the chunks table behind an HNSW index.
type ChunkStore struct {
	db *DB
}

func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

func (s *ChunkStore) Name() string { return "postgres" }

func (s *ChunkStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := chunkstore.ValidateChunks(chunks); err != nil {
		return err
	}

	query := `
        INSERT INTO chunks (id, resource_id, tenant_id, ordinal, content, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(query, c.ID, c.ResourceID, c.TenantID, c.Ordinal, c.Text, pgvector.NewVector(c.Embedding), c.CreatedAt)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert chunk %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

// SimilaritySearch sizes the HNSW candidate list from numCandidates and turns
// on strict-order iterative index scans for the duration of the transaction,
// so the tenant predicate is satisfied inside the index walk: a tenant holding
// a small share of the table still gets k rows. Requires pgvector 0.8 or later.
func (s *ChunkStore) SimilaritySearch(ctx context.Context, query []float32, tenantID string, k, numCandidates int) ([]models.RetrievedChunk, error) {
	ef := min(max(numCandidates, k), maxEfSearch)

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT set_config('hnsw.ef_search', $1, true), set_config('hnsw.iterative_scan', 'strict_order', true)`,
		strconv.Itoa(ef)); err != nil {
		return nil, fmt.Errorf("configure hnsw scan: %w", err)
	}

	sql := `
        SELECT id, resource_id, tenant_id, ordinal, content, created_at, 1 - (embedding <=> $1) AS score
        FROM chunks
        WHERE tenant_id = $2
        ORDER BY embedding <=> $1
        LIMIT $3
    `

	rows, err := tx.Query(ctx, sql, pgvector.NewVector(query), tenantID, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := []models.RetrievedChunk{}
	for rows.Next() {
		var rc models.RetrievedChunk
		if err := rows.Scan(&rc.ID, &rc.ResourceID, &rc.TenantID, &rc.Ordinal, &rc.Text, &rc.CreatedAt, &rc.Score); err != nil {
			return nil, err
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, tx.Commit(ctx)
}

func (s *ChunkStore) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}
