package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/repository"
)

// VectorIndex is the similarity index the engine and the pipeline talk to.
// repository.QdrantRepository implements it.
type VectorIndex interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, records []repository.VectorRecord, namespace string) error
	Query(ctx context.Context, vector []float32, topK int, namespace string) ([]repository.VectorMatch, error)
	FetchVector(ctx context.Context, articleID, namespace string) ([]float32, error)
}

// ArticleStore is the durable article table. repository.ArticleRepository
// implements it.
type ArticleStore interface {
	UpsertBatch(ctx context.Context, articles []*domain.Article) error
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Article, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Article, error)
	MarkIndexed(ctx context.Context, ids []string, model string, at time.Time) error
}

// Recommendation is one related article with its cosine similarity.
type Recommendation struct {
	Article *domain.Article
	Score   float32
}

// RecommendConfig holds the engine's tunables.
type RecommendConfig struct {
	Namespace           string
	SimilarityThreshold float32
	MaxResultsCap       int
	Overfetch           int
}

// RecommendationEngine answers "related articles" queries. It holds no
// mutable state and is safe for concurrent use.
type RecommendationEngine struct {
	index    VectorIndex
	articles ArticleStore
	cfg      RecommendConfig
}

// NewRecommendationEngine creates an engine.
func NewRecommendationEngine(index VectorIndex, articles ArticleStore, cfg RecommendConfig) *RecommendationEngine {
	if cfg.Overfetch < 0 {
		cfg.Overfetch = 0
	}
	return &RecommendationEngine{index: index, articles: articles, cfg: cfg}
}

// Recommend returns up to maxResults articles most similar to articleID,
// highest score first. The article itself and matches below the similarity
// threshold are never returned. An empty result is not an error.
//
// Errors:
//   - domain.ErrArticleNotFound when articleID has no vector in the index
//   - domain.ErrIndexUnavailable when the index can't be reached
func (e *RecommendationEngine) Recommend(ctx context.Context, articleID string, maxResults int) ([]Recommendation, error) {
	if maxResults <= 0 {
		return []Recommendation{}, nil
	}
	if e.cfg.MaxResultsCap > 0 && maxResults > e.cfg.MaxResultsCap {
		maxResults = e.cfg.MaxResultsCap
	}

	startTime := time.Now()
	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldArticleID: articleID})

	vector, err := e.index.FetchVector(ctx, articleID, e.cfg.Namespace)
	if err != nil {
		if errors.Is(err, domain.ErrVectorNotFound) {
			return nil, fmt.Errorf("article %q: %w", articleID, domain.ErrArticleNotFound)
		}
		return nil, fmt.Errorf("failed to fetch vector: %w", err)
	}

	matches, err := e.index.Query(ctx, vector, maxResults+e.cfg.Overfetch, e.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	kept := make([]repository.VectorMatch, 0, len(matches))
	for _, m := range matches {
		if m.ArticleID == articleID {
			continue
		}
		kept = append(kept, m)
	}

	results, err := hydrate(ctx, e.articles, kept, e.cfg.SimilarityThreshold, maxResults)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldArticleID: articleID,
		"candidates":          len(matches),
	}).WithCount(len(results)).WithDuration(time.Since(startTime)).Debug(ctx, "Recommendations computed")

	return results, nil
}

// hydrate loads the stored articles for matches at or above threshold, in
// match order, and keeps at most limit of them. Matches whose article is no
// longer stored are skipped.
func hydrate(ctx context.Context, articles ArticleStore, matches []repository.VectorMatch, threshold float32, limit int) ([]Recommendation, error) {
	kept := make([]repository.VectorMatch, 0, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.ArticleID == "" || m.Score < threshold {
			continue
		}
		kept = append(kept, m)
		ids = append(ids, m.ArticleID)
	}

	results := []Recommendation{}
	if len(ids) == 0 {
		return results, nil
	}

	found, err := articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	for _, m := range kept {
		article, ok := found[m.ArticleID]
		if !ok {
			logger.CtxDebug(ctx, "Skipping match %s with no stored article", m.ArticleID)
			continue
		}
		results = append(results, Recommendation{Article: article, Score: m.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
