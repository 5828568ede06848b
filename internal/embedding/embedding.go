// Package embedding turns texts into vectors through a pluggable provider
// while guaranteeing output order matches input order.
package embedding

import (
	"context"
	"fmt"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

// Embedder is the provider contract: one vector per input text, same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

const DefaultBatchSize = 256

// Batcher sends texts to an Embedder in as few requests as the batch size
// allows and checks every response for count and order alignment.
type Batcher struct {
	embedder  Embedder
	batchSize int
}

func NewBatcher(e Embedder, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{embedder: e, batchSize: batchSize}
}

func (b *Batcher) ModelName() string { return b.embedder.ModelName() }

func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		vecs, err := b.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if err := checkAligned(vecs, end-start, b.embedder.Dimensions()); err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string under the same contract.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func checkAligned(vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbeddingAlignment, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: missing vector at position %d", models.ErrEmbeddingAlignment, i)
		}
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", models.ErrEmbeddingAlignment, i, len(v), dims)
		}
	}
	return nil
}
