// Package app builds the service graph from configuration. Both binaries
// share it so the CLI exercises exactly what the server runs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/acquire"
	"github.com/HanTheDev/onboard-assistant/internal/assistant"
	"github.com/HanTheDev/onboard-assistant/internal/cache"
	"github.com/HanTheDev/onboard-assistant/internal/chunking"
	"github.com/HanTheDev/onboard-assistant/internal/chunkstore"
	"github.com/HanTheDev/onboard-assistant/internal/config"
	"github.com/HanTheDev/onboard-assistant/internal/db"
	"github.com/HanTheDev/onboard-assistant/internal/embedding"
	"github.com/HanTheDev/onboard-assistant/internal/expand"
	"github.com/HanTheDev/onboard-assistant/internal/llm"
	"github.com/HanTheDev/onboard-assistant/internal/metrics"
	"github.com/HanTheDev/onboard-assistant/internal/normalize"
	"github.com/HanTheDev/onboard-assistant/internal/ratelimit"
	"github.com/HanTheDev/onboard-assistant/internal/retrieve"
	"github.com/HanTheDev/onboard-assistant/internal/synth"
	"github.com/HanTheDev/onboard-assistant/internal/tasks"
)

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Collector

	DB      *db.DB
	Redis   *redis.Client
	Cache   *cache.ResponseCache
	Limiter *ratelimit.RateLimiter
	Tasks   *tasks.Runner
	Service *assistant.Service

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New("assistant"),
	}
	defer func() {
		if err != nil {
			a.closeResources(ctx)
		}
	}()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, cfg.DatabaseURL, cfg.EmbeddingDimensions); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	a.DB, err = db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { a.DB.Close(); return nil })

	a.Redis, err = cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })

	store, err := a.chunkStore(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := cfg.Pipeline
	batcher := embedding.NewBatcher(embedder, embeddingBatchSize(cfg))
	a.Cache = cache.NewResponseCache(a.Redis, logger,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithPopularityTTL(cfg.PopularityTTL),
		cache.WithMetrics(a.Metrics),
	)
	a.Limiter = ratelimit.NewRateLimiter(a.Redis, logger)
	a.Tasks = tasks.NewRunner(cfg.TaskTimeout, logger, a.Metrics)

	acquirer := acquire.New(logger,
		acquire.WithSPAHosts(p.SPAHosts),
		acquire.WithMinContentLength(cfg.MinContentLength),
		acquire.WithFileReader(acquire.NewFileReader(cfg.UploadPath)),
		acquire.WithFetcher(acquire.StrategyDocExport, acquire.NewDocExport(cfg.FetchTimeout)),
		acquire.WithFetcher(acquire.StrategyBrowser, acquire.NewBrowser(cfg.BrowserTimeout, cfg.BrowserSettleDelay, logger)),
		acquire.WithFetcher(acquire.StrategyStatic, acquire.NewStatic(cfg.FetchTimeout, p.ContentSelectors)),
	)

	related := expand.DefaultRelatedTerms
	if len(p.RelatedTerms) > 0 {
		related = p.RelatedTerms
	}
	retriever := retrieve.New(
		expand.New(expand.WithRelatedTerms(related), expand.WithMaxVariants(p.MaxVariants)),
		batcher, store, logger,
		retrieve.WithPerVariantK(p.PerVariantK),
		retrieve.WithNumCandidates(p.NumCandidates),
		retrieve.WithTopN(p.TopN),
	)

	a.Service = assistant.New(assistant.Deps{
		Resources:       a.DB,
		Acquirer:        acquirer,
		Normalizer:      normalize.New(normalize.WithStopwords(p.ExtraStopwords...)),
		FileSplitter:    chunking.NewSplitter(chunking.WithChunkSize(p.FileChunkSize), chunking.WithOverlap(p.FileChunkOverlap)),
		URLSplitter:     chunking.NewSplitter(chunking.WithChunkSize(p.URLChunkSize), chunking.WithOverlap(p.URLChunkOverlap)),
		Embedder:        batcher,
		Store:           store,
		Retriever:       retriever,
		Synthesizer:     synth.New(completer, a.DB, cfg.CompletionMaxTokens, logger),
		Cache:           a.Cache,
		Tasks:           a.Tasks,
		Logger:          logger,
		Metrics:         a.Metrics,
		CompletionModel: completer.ModelName(),
	})

	logger.Info("assistant initialized",
		zap.String("chunk_store", store.Name()),
		zap.String("embedding_provider", cfg.EmbeddingProvider),
		zap.String("embedding_model", embedder.ModelName()),
		zap.String("completion_provider", cfg.CompletionProvider),
		zap.String("completion_model", completer.ModelName()),
	)
	return a, nil
}

func (a *App) chunkStore(ctx context.Context) (chunkstore.Store, error) {
	cfg := a.Config
	switch cfg.ChunkStore {
	case "mongo":
		m, err := chunkstore.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, cfg.MongoVectorIndex)
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		a.closers = append(a.closers, m.Close)
		return m, nil
	case "memory":
		return chunkstore.NewMemory(), nil
	default:
		return db.NewChunkStore(a.DB), nil
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	if cfg.EmbeddingProvider == "gemini" {
		model := cfg.EmbeddingModel
		if model == embedding.DefaultOpenAIModel {
			model = ""
		}
		return embedding.NewGemini(ctx, cfg.GeminiAPIKey,
			embedding.WithGeminiModel(model),
			embedding.WithGeminiDimensions(cfg.EmbeddingDimensions),
		)
	}
	return embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		Timeout:    cfg.ProviderTimeout,
	})
}

func embeddingBatchSize(cfg *config.Config) int {
	if cfg.EmbeddingProvider == "gemini" && (cfg.EmbeddingBatchSize <= 0 || cfg.EmbeddingBatchSize > embedding.GeminiMaxBatch) {
		return embedding.GeminiMaxBatch
	}
	return cfg.EmbeddingBatchSize
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	if cfg.CompletionProvider == "gemini" {
		model := cfg.CompletionModel
		if model == llm.DefaultOpenAIModel {
			model = ""
		}
		return llm.NewGemini(ctx, cfg.GeminiAPIKey, llm.WithGeminiModel(model))
	}
	return llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.CompletionModel,
		Timeout: cfg.ProviderTimeout,
	})
}

// Close drains detached tasks within ctx, then releases backend clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Tasks != nil {
		if err := a.Tasks.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain tasks: %w", err))
		}
	}
	if err := a.closeResources(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
