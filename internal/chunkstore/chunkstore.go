// Package chunkstore defines the tenant-scoped vector store contract and
// the non-Postgres implementations of it.
package chunkstore

import (
	"context"
	"fmt"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

// Store persists chunks and answers similarity queries. SimilaritySearch
// must apply the tenant filter inside the index scan, and must return an
// empty slice rather than an error when the tenant has no chunks.
type Store interface {
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	SimilaritySearch(ctx context.Context, query []float32, tenantID string, k, numCandidates int) ([]models.RetrievedChunk, error)
	CountChunks(ctx context.Context, tenantID string) (int64, error)
	Name() string
}

// ValidateChunks rejects chunks that would break tenant scoping.
func ValidateChunks(chunks []models.Chunk) error {
	for i, c := range chunks {
		if c.TenantID == "" {
			return fmt.Errorf("%w: chunk %d of resource %s has no tenant", models.ErrTenantMismatch, i, c.ResourceID)
		}
		if c.ResourceID == "" {
			return fmt.Errorf("chunk %d has no resource id", i)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of resource %s has no embedding", i, c.ResourceID)
		}
	}
	return nil
}
