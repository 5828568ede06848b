package chunkstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ Store = (*Mongo)(nil)

// Mongo stores chunks in a MongoDB Atlas collection and queries them with
// $vectorSearch. The Atlas index must declare tenantId as a filter field.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	index  string
}

type chunkDocument struct {
	ID         string    `bson:"_id"`
	ResourceID string    `bson:"resourceId"`
	TenantID   string    `bson:"tenantId"`
	Ordinal    int       `bson:"chunkIndex"`
	Text       string    `bson:"text"`
	Embedding  []float32 `bson:"embedding"`
	CreatedAt  time.Time `bson:"createdAt"`
}

type searchHit struct {
	chunkDocument `bson:",inline"`
	Score         float64 `bson:"score"`
}

func NewMongo(ctx context.Context, uri, database, collection, index string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{
		client: client,
		coll:   client.Database(database).Collection(collection),
		index:  index,
	}, nil
}

func (m *Mongo) Name() string { return "mongo" }

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ValidateChunks(chunks); err != nil {
		return err
	}

	docs := make([]interface{}, len(chunks))
	for i, c := range chunks {
		docs[i] = chunkDocument{
			ID:         c.ID,
			ResourceID: c.ResourceID,
			TenantID:   c.TenantID,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Embedding:  c.Embedding,
			CreatedAt:  c.CreatedAt,
		}
	}
	if _, err := m.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (m *Mongo) SimilaritySearch(ctx context.Context, query []float32, tenantID string, k, numCandidates int) ([]models.RetrievedChunk, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: m.index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: query},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: k},
			{Key: "filter", Value: bson.D{{Key: "tenantId", Value: tenantID}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "resourceId", Value: 1},
			{Key: "tenantId", Value: 1},
			{Key: "chunkIndex", Value: 1},
			{Key: "text", Value: 1},
			{Key: "createdAt", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cur.Close(ctx)

	var hits []searchHit
	if err := cur.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("decode vector search: %w", err)
	}

	results := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.RetrievedChunk{
			Chunk: models.Chunk{
				ID:         h.ID,
				ResourceID: h.ResourceID,
				TenantID:   h.TenantID,
				Ordinal:    h.Ordinal,
				Text:       h.Text,
				CreatedAt:  h.CreatedAt,
			},
			Score: h.Score,
		})
	}
	return results, nil
}

func (m *Mongo) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.D{{Key: "tenantId", Value: tenantID}})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
