package chunkstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

// Requires an Atlas deployment with a vector index named by
// TEST_MONGODB_VECTOR_INDEX over "embedding" (3 dims) filtering on "tenantId".
func TestMongoSearchIsTenantScoped(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	index := os.Getenv("TEST_MONGODB_VECTOR_INDEX")
	if index == "" {
		index = "vector_index"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := NewMongo(ctx, uri, "onboard_test", "chunks_"+uuid.NewString()[:8], index)
	require.NoError(t, err)
	defer func() {
		_ = m.coll.Drop(context.Background())
		_ = m.Close(context.Background())
	}()

	tenantA, tenantB := uuid.NewString(), uuid.NewString()
	a := chunk(tenantA, "ra", 0, 1, 0, 0)
	a.ID = uuid.NewString()
	b := chunk(tenantB, "rb", 0, 1, 0, 0)
	b.ID = uuid.NewString()
	require.NoError(t, m.InsertChunks(ctx, []models.Chunk{a, b}))

	n, err := m.CountChunks(ctx, tenantA)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, tenantA, 10, 200)
	require.NoError(t, err)
	for _, c := range got {
		assert.Equal(t, tenantA, c.TenantID)
	}
}
