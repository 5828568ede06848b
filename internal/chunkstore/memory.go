package chunkstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ Store = (*Memory)(nil)

// Memory is an exact cosine-similarity store partitioned by tenant. It is
// used for local runs and tests.
type Memory struct {
	mu       sync.RWMutex
	byTenant map[string][]models.Chunk
}

func NewMemory() *Memory {
	return &Memory{byTenant: make(map[string][]models.Chunk)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	if err := ValidateChunks(chunks); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.byTenant[c.TenantID] = append(m.byTenant[c.TenantID], c)
	}
	return nil
}

func (m *Memory) SimilaritySearch(_ context.Context, query []float32, tenantID string, k, _ int) ([]models.RetrievedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := m.byTenant[tenantID]
	results := make([]models.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		score := cosine(query, c.Embedding)
		c.Embedding = append([]float32(nil), c.Embedding...)
		results = append(results, models.RetrievedChunk{Chunk: c, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) CountChunks(_ context.Context, tenantID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byTenant[tenantID])), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
