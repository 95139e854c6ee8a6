package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/newsrec/internal/domain"
)

// LatestStore lists stored articles. repository.ArticleRepository implements it.
type LatestStore interface {
	ListLatest(ctx context.Context, category string, limit int) ([]domain.Article, int64, error)
}

// RunHistory answers when the pipeline last finished. repository.RunRepository
// implements it.
type RunHistory interface {
	LastCompleted(ctx context.Context) (*domain.PipelineRun, error)
}

// NewsPage is one listing of the latest articles.
type NewsPage struct {
	Articles      []domain.Article
	Total         int64
	LastProcessed *time.Time
}

// NewsService serves the latest-articles listing.
type NewsService struct {
	articles LatestStore
	runs     RunHistory
}

// NewNewsService creates a news service.
func NewNewsService(articles LatestStore, runs RunHistory) *NewsService {
	return &NewsService{articles: articles, runs: runs}
}

// LatestArticles returns the newest articles, optionally filtered by category.
// Total counts every matching article, not only the returned page.
func (s *NewsService) LatestArticles(ctx context.Context, category string, limit int) (*NewsPage, error) {
	articles, total, err := s.articles.ListLatest(ctx, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	page := &NewsPage{Articles: articles, Total: total}

	last, err := s.runs.LastCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	if last != nil {
		page.LastProcessed = last.CompletedAt
	}
	return page, nil
}
