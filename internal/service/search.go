package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/repository"
)

// QueryEmbedder embeds free-text queries. EmbeddingAdapter implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// CategoryIndex runs nearest-neighbour searches optionally restricted to one
// category. repository.QdrantRepository implements it.
type CategoryIndex interface {
	QueryCategory(ctx context.Context, vector []float32, topK int, namespace, category string) ([]repository.VectorMatch, error)
}

// SearchConfig holds configuration for the search service.
type SearchConfig struct {
	Namespace           string
	SimilarityThreshold float32
	MaxResultsCap       int
	Overfetch           int
}

// SearchService answers free-text article searches.
type SearchService struct {
	embedder QueryEmbedder
	index    CategoryIndex
	articles ArticleStore
	cfg      SearchConfig
}

// NewSearchService creates a search service.
func NewSearchService(embedder QueryEmbedder, index CategoryIndex, articles ArticleStore, cfg SearchConfig) *SearchService {
	if cfg.Overfetch < 0 {
		cfg.Overfetch = 0
	}
	return &SearchService{embedder: embedder, index: index, articles: articles, cfg: cfg}
}

// Search embeds query and returns up to limit stored articles closest to it,
// highest score first, applying the same similarity threshold as
// recommendations. A non-empty category keeps only articles whose primary
// category matches. A blank query or limit <= 0 returns an empty result
// without calling the embedder.
//
// Errors:
//   - domain.ErrEmbeddingUnavailable / domain.ErrProviderUnauthorized from the embedder
//   - domain.ErrIndexUnavailable when the index can't be reached
func (s *SearchService) Search(ctx context.Context, query, category string, limit int) ([]Recommendation, error) {
	query = strings.TrimSpace(query)
	category = strings.TrimSpace(category)
	if query == "" || limit <= 0 {
		return []Recommendation{}, nil
	}
	if s.cfg.MaxResultsCap > 0 && limit > s.cfg.MaxResultsCap {
		limit = s.cfg.MaxResultsCap
	}

	startTime := time.Now()
	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldComponent: "search"})

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	matches, err := s.index.QueryCategory(ctx, vector, limit+s.cfg.Overfetch, s.cfg.Namespace, category)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results, err := hydrate(ctx, s.articles, matches, s.cfg.SimilarityThreshold, limit)
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		"query":      query,
		"category":   category,
		"candidates": len(matches),
	}).WithCount(len(results)).WithDuration(time.Since(startTime)).Info(ctx, "Search completed")

	return results, nil
}
