// Package assistant runs the ingestion and question-answering pipelines on
// behalf of the transport layers.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/chunking"
	"github.com/HanTheDev/onboard-assistant/internal/chunkstore"
	"github.com/HanTheDev/onboard-assistant/internal/metrics"
	"github.com/HanTheDev/onboard-assistant/internal/models"
	"github.com/HanTheDev/onboard-assistant/internal/normalize"
)

const (
	MessageNoDocuments = "I don't have any documents for your company yet. Please upload files or add URLs so I can answer questions about them."
	MessageProcessing  = "Your company's documents are still being processed. Please try again in a few minutes."
	MessageNoMatch     = "I couldn't find information about that in your company's documents. Try rephrasing your question or ask about a different topic."

	DefaultPopularLimit = 10
	maxPopularLimit     = 100
	markTimeout         = 5 * time.Second
)

type ResourceRepository interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	GetResources(ctx context.Context, ids []string) ([]models.Resource, error)
	CountResources(ctx context.Context, tenantID string) (int64, error)
	MarkProcessed(ctx context.Context, id, extractedContent string) error
	MarkFailed(ctx context.Context, id, processingError string) error
}

type Acquirer interface {
	AcquireURL(ctx context.Context, rawURL string) (string, error)
	AcquireFile(ctx context.Context, path string) (string, error)
}

type ChunkEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

type Retriever interface {
	Retrieve(ctx context.Context, query, tenantID string) ([]models.RetrievedChunk, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []models.RetrievedChunk, tenantID string) (string, []models.SourceAttribution, error)
}

type ResponseCache interface {
	Get(ctx context.Context, query, tenantID string) (*models.CachedAnswer, bool)
	Put(ctx context.Context, query, tenantID string, answer models.CachedAnswer) error
	Track(ctx context.Context, query, tenantID string) error
	TopN(ctx context.Context, tenantID string, n int) ([]models.PopularQuestion, error)
	Stats(ctx context.Context, tenantID string) (*models.CacheStats, error)
	Clear(ctx context.Context, tenantID string) error
}

// TaskRunner runs work detached from the caller's context.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}

type Deps struct {
	Resources    ResourceRepository
	Acquirer     Acquirer
	Normalizer   *normalize.Normalizer
	FileSplitter *chunking.Splitter
	URLSplitter  *chunking.Splitter
	Embedder     ChunkEmbedder
	Store        chunkstore.Store
	Retriever    Retriever
	Synthesizer  Synthesizer
	Cache        ResponseCache
	Tasks        TaskRunner
	Logger       *zap.Logger
	Metrics      *metrics.Collector

	CompletionModel string
}

type Service struct {
	resources    ResourceRepository
	acquirer     Acquirer
	normalizer   *normalize.Normalizer
	fileSplitter *chunking.Splitter
	urlSplitter  *chunking.Splitter
	embedder     ChunkEmbedder
	store        chunkstore.Store
	retriever    Retriever
	synth        Synthesizer
	cache        ResponseCache
	tasks        TaskRunner
	logger       *zap.Logger
	metrics      *metrics.Collector

	completionModel string
	now             func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		resources:       d.Resources,
		acquirer:        d.Acquirer,
		normalizer:      d.Normalizer,
		fileSplitter:    d.FileSplitter,
		urlSplitter:     d.URLSplitter,
		embedder:        d.Embedder,
		store:           d.Store,
		retriever:       d.Retriever,
		synth:           d.Synthesizer,
		cache:           d.Cache,
		tasks:           d.Tasks,
		logger:          d.Logger,
		metrics:         d.Metrics,
		completionModel: d.CompletionModel,
		now:             time.Now,
	}
	if s.normalizer == nil {
		s.normalizer = normalize.New()
	}
	if s.fileSplitter == nil {
		s.fileSplitter = chunking.NewSplitter(chunking.WithChunkSize(1000), chunking.WithOverlap(150))
	}
	if s.urlSplitter == nil {
		s.urlSplitter = chunking.NewSplitter(chunking.WithChunkSize(1000), chunking.WithOverlap(200))
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

type IngestResult struct {
	ResourceID       string  `json:"resource_id"`
	TenantID         string  `json:"company_id"`
	Chunks           int     `json:"chunks"`
	ContentLength    int     `json:"content_length"`
	CompressionRatio float64 `json:"compression_ratio"`
}

func (s *Service) ProcessFile(ctx context.Context, resourceID string) (*IngestResult, error) {
	return s.process(ctx, resourceID, models.KindFile)
}

func (s *Service) ProcessURL(ctx context.Context, resourceID string) (*IngestResult, error) {
	return s.process(ctx, resourceID, models.KindURL)
}

// process ingests one resource. Any failure after the resource is loaded is
// written back onto it before being returned.
func (s *Service) process(ctx context.Context, resourceID string, kind models.ResourceKind) (*IngestResult, error) {
	start := time.Now()

	res, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Kind != kind {
		return nil, fmt.Errorf("%w: resource %s is %s, expected %s", models.ErrWrongResourceKind, res.ID, res.Kind, kind)
	}

	log := s.logger.With(
		zap.String("resource_id", res.ID),
		zap.String("tenant_id", res.TenantID),
		zap.String("kind", string(kind)),
	)

	result, err := s.ingest(ctx, res)
	if err != nil {
		s.metrics.Ingestion(string(kind), "failed")
		log.Warn("ingestion failed", zap.Error(err))

		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
		defer cancel()
		if markErr := s.resources.MarkFailed(markCtx, res.ID, err.Error()); markErr != nil {
			log.Error("failed to record ingestion error", zap.Error(markErr))
		}
		return nil, err
	}

	s.metrics.Ingestion(string(kind), "processed")
	s.metrics.Since("ingest", start)
	log.Info("resource processed",
		zap.Int("chunks", result.Chunks),
		zap.Float64("compression_ratio", result.CompressionRatio),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, res *models.Resource) (*IngestResult, error) {
	var (
		raw      string
		err      error
		splitter *chunking.Splitter
	)
	switch res.Kind {
	case models.KindURL:
		raw, err = s.acquirer.AcquireURL(ctx, res.URL)
		splitter = s.urlSplitter
	default:
		raw, err = s.acquirer.AcquireFile(ctx, res.FilePath)
		splitter = s.fileSplitter
	}
	if err != nil {
		return nil, err
	}

	doc := s.normalizer.Normalize(raw, normalize.Metadata{
		SourceURL:   res.Location(),
		Title:       res.Title,
		ExtractedAt: s.now(),
	})
	s.metrics.Compression(doc.CompressionRatio())

	texts := splitter.Split(doc.Text)
	if len(texts) == 0 {
		return nil, &models.InsufficientContentError{Strategy: "normalize", Source: res.Location(), Min: 1}
	}

	vecs, err := s.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d vectors", models.ErrEmbeddingAlignment, len(texts), len(vecs))
	}

	now := s.now().UTC()
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:         uuid.NewString(),
			ResourceID: res.ID,
			TenantID:   res.TenantID,
			Ordinal:    i,
			Text:       text,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}
	if err := s.store.InsertChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.resources.MarkProcessed(ctx, res.ID, doc.Text); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	return &IngestResult{
		ResourceID:       res.ID,
		TenantID:         res.TenantID,
		Chunks:           len(chunks),
		ContentLength:    len([]rune(doc.Text)),
		CompressionRatio: doc.CompressionRatio(),
	}, nil
}

// AnswerQuery answers query from the tenant's documents. Tracking and the
// cache write run detached and never affect the returned answer.
func (s *Service) AnswerQuery(ctx context.Context, query, tenantID string) (*models.Answer, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.ErrEmptyQuery
	}

	s.tasks.Go("track-query", func(ctx context.Context) error {
		return s.cache.Track(ctx, query, tenantID)
	})

	if cached, ok := s.cache.Get(ctx, query, tenantID); ok {
		s.metrics.Query("cache_hit")
		return &models.Answer{Content: cached.Content, Sources: nonNil(cached.Sources), Cached: true}, nil
	}

	chunks, err := s.retriever.Retrieve(ctx, query, tenantID)
	if err != nil {
		s.metrics.Query("error")
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	s.metrics.Retrieved(len(chunks))

	if len(chunks) == 0 {
		msg, outcome, err := s.emptyState(ctx, tenantID)
		if err != nil {
			s.metrics.Query("error")
			return nil, err
		}
		s.metrics.Query(outcome)
		s.logger.Info("no chunks retrieved", zap.String("tenant_id", tenantID), zap.String("outcome", outcome))
		return &models.Answer{Content: msg, Sources: []models.SourceAttribution{}}, nil
	}

	content, sources, err := s.synth.Synthesize(ctx, query, chunks, tenantID)
	if err != nil {
		s.metrics.Query("error")
		return nil, err
	}
	sources = nonNil(sources)

	cached := models.CachedAnswer{Content: content, Sources: sources, CachedAt: s.now().UTC()}
	s.tasks.Go("cache-answer", func(ctx context.Context) error {
		return s.cache.Put(ctx, query, tenantID, cached)
	})

	s.metrics.Query("answered")
	s.metrics.Since("answer", start)
	s.logger.Info("query answered",
		zap.String("tenant_id", tenantID),
		zap.Int("chunks", len(chunks)),
		zap.Int("sources", len(sources)),
		zap.Duration("duration", time.Since(start)),
	)
	return &models.Answer{Content: content, Sources: sources}, nil
}

// emptyState tells apart a tenant with no resources, one whose resources
// have produced no chunks yet, and one whose chunks simply did not match.
func (s *Service) emptyState(ctx context.Context, tenantID string) (string, string, error) {
	resources, err := s.resources.CountResources(ctx, tenantID)
	if err != nil {
		return "", "", fmt.Errorf("count resources: %w", err)
	}
	if resources == 0 {
		return MessageNoDocuments, "no_documents", nil
	}

	chunks, err := s.store.CountChunks(ctx, tenantID)
	if err != nil {
		return "", "", fmt.Errorf("count chunks: %w", err)
	}
	if chunks == 0 {
		return MessageProcessing, "processing", nil
	}
	return MessageNoMatch, "no_match", nil
}

func (s *Service) PopularQuestions(ctx context.Context, tenantID string, limit int) ([]models.PopularQuestion, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	limit = min(limit, maxPopularLimit)
	return s.cache.TopN(ctx, tenantID, limit)
}

func (s *Service) CacheStats(ctx context.Context, tenantID string) (*models.CacheStats, error) {
	return s.cache.Stats(ctx, tenantID)
}

func (s *Service) ClearCache(ctx context.Context, tenantID string) error {
	return s.cache.Clear(ctx, tenantID)
}

type Status struct {
	Status          string `json:"status"`
	ChunkStore      string `json:"chunk_store"`
	EmbeddingModel  string `json:"embedding_model"`
	CompletionModel string `json:"completion_model"`
}

func (s *Service) Status() Status {
	return Status{
		Status:          "ok",
		ChunkStore:      s.store.Name(),
		EmbeddingModel:  s.embedder.ModelName(),
		CompletionModel: s.completionModel,
	}
}

func nonNil(sources []models.SourceAttribution) []models.SourceAttribution {
	if sources == nil {
		return []models.SourceAttribution{}
	}
	return sources
}
