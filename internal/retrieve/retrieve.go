// Package retrieve runs every query variant against the chunk store and
// merges the hits into one ranked list.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/onboard-assistant/internal/chunkstore"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

const (
	DefaultPerVariantK   = 10
	DefaultNumCandidates = 200
	DefaultTopN          = 15
	mergePrefixRunes     = 50
)

type Expander interface {
	Expand(query string) []string
}

type QueryEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

type Retriever struct {
	expander Expander
	embedder QueryEmbedder
	store    chunkstore.Store
	logger   *zap.Logger

	perVariantK   int
	numCandidates int
	topN          int
}

type Option func(*Retriever)

func WithPerVariantK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.perVariantK = k
		}
	}
}

func WithNumCandidates(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.numCandidates = n
		}
	}
}

func WithTopN(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.topN = n
		}
	}
}

func New(expander Expander, embedder QueryEmbedder, store chunkstore.Store, logger *zap.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		expander:      expander,
		embedder:      embedder,
		store:         store,
		logger:        logger,
		perVariantK:   DefaultPerVariantK,
		numCandidates: DefaultNumCandidates,
		topN:          DefaultTopN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topN chunks for tenantID ordered by descending
// score. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query, tenantID string) ([]models.RetrievedChunk, error) {
	start := time.Now()
	variants := r.expander.Expand(query)
	if len(variants) == 0 {
		return nil, nil
	}

	vectors, err := r.embedder.EmbedAll(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("embed query variants: %w", err)
	}

	merged := newMergeSet()
	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		vec := vectors[i]
		g.Go(func() error {
			hits, err := r.store.SimilaritySearch(gctx, vec, tenantID, r.perVariantK, r.numCandidates)
			if err != nil {
				return fmt.Errorf("similarity search: %w", err)
			}
			for _, h := range hits {
				if h.TenantID != tenantID {
					return fmt.Errorf("%w: chunk %s belongs to %q, query tenant %q", models.ErrTenantMismatch, h.ID, h.TenantID, tenantID)
				}
			}
			merged.add(hits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := merged.ranked(r.topN)
	r.logger.Debug("retrieved chunks",
		zap.String("tenant_id", tenantID),
		zap.Int("variants", len(variants)),
		zap.Int("chunks", len(ranked)),
		zap.Duration("duration", time.Since(start)),
	)
	return ranked, nil
}

type mergeKey struct {
	resourceID string
	prefix     string
}

// mergeSet keeps the highest-scoring hit per (resource, text prefix) key.
type mergeSet struct {
	mu   sync.Mutex
	best map[mergeKey]models.RetrievedChunk
}

func newMergeSet() *mergeSet {
	return &mergeSet{best: make(map[mergeKey]models.RetrievedChunk)}
}

func keyOf(c models.RetrievedChunk) mergeKey {
	prefix := c.Text
	if r := []rune(prefix); len(r) > mergePrefixRunes {
		prefix = string(r[:mergePrefixRunes])
	}
	return mergeKey{resourceID: c.ResourceID, prefix: prefix}
}

func (m *mergeSet) add(hits []models.RetrievedChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hits {
		k := keyOf(h)
		if cur, ok := m.best[k]; !ok || h.Score > cur.Score {
			m.best[k] = h
		}
	}
}

func (m *mergeSet) ranked(topN int) []models.RetrievedChunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.RetrievedChunk, 0, len(m.best))
	for _, c := range m.best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].ResourceID != out[j].ResourceID {
			return out[i].ResourceID < out[j].ResourceID
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
