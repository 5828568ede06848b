package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ Embedder = (*Gemini)(nil)

const (
	DefaultGeminiModel = "text-embedding-004"
	// GeminiMaxBatch is the most inputs one batch embed request accepts.
	GeminiMaxBatch = 100
	// GeminiMaxDimensions is text-embedding-004's native output size.
	GeminiMaxDimensions = 768
)

type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

type GeminiOption func(*Gemini)

func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

func WithGeminiDimensions(dims int) GeminiOption {
	return func(g *Gemini) {
		if dims > 0 {
			g.dimensions = dims
		}
	}
}

func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embeddings: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	g := &Gemini{client: client, model: DefaultGeminiModel, dimensions: GeminiMaxDimensions}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gemini) Dimensions() int   { return g.dimensions }
func (g *Gemini) ModelName() string { return g.model }

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	dims := int32(g.dimensions)

	vecs := make([][]float32, 0, len(texts))
	for _, batch := range splitBatches(texts, GeminiMaxBatch) {
		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dims,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed content: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs", models.ErrEmbeddingAlignment, len(resp.Embeddings), len(batch))
		}
		for _, e := range resp.Embeddings {
			if e == nil {
				vecs = append(vecs, nil)
				continue
			}
			vecs = append(vecs, e.Values)
		}
	}
	return vecs, nil
}

func splitBatches(texts []string, size int) [][]string {
	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		batches = append(batches, texts[start:min(start+size, len(texts))])
	}
	return batches
}
