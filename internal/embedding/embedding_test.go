package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

type fakeEmbedder struct {
	dims    int
	calls   [][]string
	respond func(texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.respond != nil {
		return f.respond(texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestEmbedAllPreservesOrderAcrossBatches(t *testing.T) {
	f := &fakeEmbedder{dims: 2}
	b := NewBatcher(f, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := b.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Len(t, f.calls, 3)
}

func TestEmbedAllEmpty(t *testing.T) {
	f := &fakeEmbedder{dims: 2}
	vecs, err := NewBatcher(f, 0).EmbedAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Empty(t, f.calls)
}

func TestEmbedAllAlignmentErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond func(texts []string) ([][]float32, error)
	}{
		{"short count", func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 1}}, nil
		}},
		{"missing vector", func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 1}, nil}, nil
		}},
		{"wrong dimensions", func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 1}, {1, 1, 1}}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeEmbedder{dims: 2, respond: tt.respond}
			_, err := NewBatcher(f, 10).EmbedAll(context.Background(), []string{"x", "y"})
			assert.ErrorIs(t, err, models.ErrEmbeddingAlignment)
		})
	}
}

func TestEmbedAllProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	f := &fakeEmbedder{dims: 2, respond: func([]string) ([][]float32, error) { return nil, boom }}
	_, err := NewBatcher(f, 10).EmbedAll(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrEmbeddingAlignment)
}

func TestEmbedQuery(t *testing.T) {
	f := &fakeEmbedder{dims: 2}
	v, err := NewBatcher(f, 10).EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, v)
}
