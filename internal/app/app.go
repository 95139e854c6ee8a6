// Package app wires configuration into the services shared by the API server
// and the ingest CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/repository"
	"github.com/timmy/newsrec/internal/retry"
	"github.com/timmy/newsrec/internal/service"
	"github.com/timmy/newsrec/internal/source/rss"
	"github.com/timmy/newsrec/internal/storage"
	"gorm.io/gorm"
)

// App holds every long-lived component.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Articles    *repository.ArticleRepository
	Runs        *repository.RunRepository
	Index       *repository.QdrantRepository
	Recommender *service.RecommendationEngine
	Search      *service.SearchService
	Stats       *service.StatsService
	News        *service.NewsService
	Pipeline    *service.Pipeline
}

// RetryPolicy converts the retry section of the config.
func RetryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    10 * time.Second,
		CallTimeout: cfg.CallTimeout,
	}
}

// New validates cfg and builds the application. It ensures the vector
// collection exists, so it needs a reachable Qdrant. On error every
// connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy := RetryPolicy(cfg.Retry)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err != nil {
			_ = repository.CloseDB(db)
		}
	}()
	articles := repository.NewArticleRepository(db)
	runs := repository.NewRunRepository(db)

	index, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
		Retry:           policy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Qdrant repository: %w", err)
	}
	defer func() {
		if err != nil {
			_ = index.Close()
		}
	}()
	if err = index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}

	provider, err := service.NewEmbeddingProvider(&cfg.Embedding, cfg.Retry.CallTimeout)
	if err != nil {
		return nil, err
	}
	embedder := service.NewEmbeddingAdapter(provider, service.EmbeddingAdapterConfig{
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
		Retry:      policy,
	})

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if objectStorage != nil {
		logger.Info("Raw feed archive enabled: type=%s", cfg.Storage.Type)
	}

	sources := rss.NewAdapters(cfg.Feeds.Categories, rss.Config{
		UserAgent: cfg.Feeds.UserAgent,
		Timeout:   cfg.Feeds.Timeout,
	})

	summarizer := service.NewSummarizer(&cfg.LLM, cfg.Retry.CallTimeout)
	if summarizer != nil {
		logger.Info("LLM summarization enabled: model=%s", cfg.LLM.Model)
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Sources: sources,
		Normalizer: service.NewNormalizer(service.NormalizerConfig{
			MaxContentChars:   cfg.Pipeline.MaxContentChars,
			MaxEmbeddingChars: cfg.Embedding.MaxInputChars,
		}),
		Embedder:   embedder,
		Summarizer: summarizer,
		Index:      index,
		Articles:   articles,
		Runs:       runs,
		Archiver:   storage.NewArchiver(objectStorage, cfg.Storage.Prefix),
	}, service.PipelineConfig{
		Namespace:          cfg.Qdrant.Namespace,
		Workers:            cfg.Pipeline.Workers,
		BatchSize:          cfg.Pipeline.BatchSize,
		MaxArticlesPerFeed: cfg.Feeds.MaxArticlesPerFeed,
	})

	recommender := service.NewRecommendationEngine(index, articles, service.RecommendConfig{
		Namespace:           cfg.Qdrant.Namespace,
		SimilarityThreshold: cfg.Recommend.SimilarityThreshold,
		MaxResultsCap:       cfg.Recommend.MaxResultsCap,
		Overfetch:           cfg.Recommend.Overfetch,
	})

	search := service.NewSearchService(embedder, index, articles, service.SearchConfig{
		Namespace:           cfg.Qdrant.Namespace,
		SimilarityThreshold: cfg.Recommend.SimilarityThreshold,
		MaxResultsCap:       cfg.Recommend.MaxResultsCap,
		Overfetch:           cfg.Recommend.Overfetch,
	})

	return &App{
		Config:      cfg,
		DB:          db,
		Articles:    articles,
		Runs:        runs,
		Index:       index,
		Recommender: recommender,
		Search:      search,
		Stats:       service.NewStatsService(index, articles, cfg.Qdrant.Namespace),
		News:        service.NewNewsService(articles, runs),
		Pipeline:    pipeline,
	}, nil
}

// Close releases the Qdrant connection and the database pool.
func (a *App) Close() error {
	return errors.Join(a.Index.Close(), repository.CloseDB(a.DB))
}
