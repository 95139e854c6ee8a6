package service

import (
	"context"
	"fmt"

	"github.com/timmy/newsrec/internal/domain"
	"golang.org/x/sync/errgroup"
)

// VectorCounter counts the vectors stored under a namespace.
// repository.QdrantRepository implements it.
type VectorCounter interface {
	Count(ctx context.Context, namespace string) (uint64, error)
}

// StatusCounter counts stored articles by index status.
// repository.ArticleRepository implements it.
type StatusCounter interface {
	CountByStatus(ctx context.Context, status domain.ArticleStatus) (int64, error)
}

// CollectionStats summarizes how much of the article table has reached the index.
type CollectionStats struct {
	Namespace       string `json:"namespace"`
	IndexedVectors  uint64 `json:"indexed_vectors"`
	PendingArticles int64  `json:"pending_articles"`
	IndexedArticles int64  `json:"indexed_articles"`
	FailedArticles  int64  `json:"failed_articles"`
}

// StatsService reports collection statistics.
type StatsService struct {
	vectors   VectorCounter
	articles  StatusCounter
	namespace string
}

// NewStatsService creates a stats service for namespace.
func NewStatsService(vectors VectorCounter, articles StatusCounter, namespace string) *StatsService {
	return &StatsService{vectors: vectors, articles: articles, namespace: namespace}
}

// CollectionStats counts vectors and articles concurrently.
func (s *StatsService) CollectionStats(ctx context.Context) (*CollectionStats, error) {
	stats := &CollectionStats{Namespace: s.namespace}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.vectors.Count(gctx, s.namespace)
		if err != nil {
			return fmt.Errorf("failed to count vectors: %w", err)
		}
		stats.IndexedVectors = n
		return nil
	})

	counts := []struct {
		status domain.ArticleStatus
		dst    *int64
	}{
		{domain.ArticleStatusPending, &stats.PendingArticles},
		{domain.ArticleStatusIndexed, &stats.IndexedArticles},
		{domain.ArticleStatusFailed, &stats.FailedArticles},
	}
	for _, c := range counts {
		g.Go(func() error {
			n, err := s.articles.CountByStatus(gctx, c.status)
			if err != nil {
				return fmt.Errorf("failed to count %s articles: %w", c.status, err)
			}
			*c.dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
