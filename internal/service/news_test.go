package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/newsrec/internal/domain"
)

type fakeLatest struct {
	articles []domain.Article
	err      error
	gotCat   string
	gotLimit int
}

func (f *fakeLatest) ListLatest(_ context.Context, category string, limit int) ([]domain.Article, int64, error) {
	f.gotCat, f.gotLimit = category, limit
	return f.articles, int64(len(f.articles)) + 10, f.err
}

type fakeHistory struct {
	run *domain.PipelineRun
}

func (f *fakeHistory) LastCompleted(context.Context) (*domain.PipelineRun, error) {
	return f.run, nil
}

func TestLatestArticles(t *testing.T) {
	done := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		run      *domain.PipelineRun
		wantLast *time.Time
	}{
		{name: "with completed run", run: &domain.PipelineRun{ID: "r1", CompletedAt: &done}, wantLast: &done},
		{name: "no run yet", run: nil, wantLast: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latest := &fakeLatest{articles: []domain.Article{{ID: "a"}, {ID: "b"}}}
			svc := NewNewsService(latest, &fakeHistory{run: tt.run})

			page, err := svc.LatestArticles(context.Background(), "tech", 2)
			if err != nil {
				t.Fatalf("LatestArticles() error = %v", err)
			}
			if latest.gotCat != "tech" || latest.gotLimit != 2 {
				t.Errorf("ListLatest called with %q, %d", latest.gotCat, latest.gotLimit)
			}
			if len(page.Articles) != 2 || page.Total != 12 {
				t.Errorf("page = %d articles, total %d", len(page.Articles), page.Total)
			}
			if (page.LastProcessed == nil) != (tt.wantLast == nil) {
				t.Fatalf("LastProcessed = %v, want %v", page.LastProcessed, tt.wantLast)
			}
			if tt.wantLast != nil && !page.LastProcessed.Equal(*tt.wantLast) {
				t.Errorf("LastProcessed = %v, want %v", page.LastProcessed, tt.wantLast)
			}
		})
	}
}

func TestLatestArticlesStoreError(t *testing.T) {
	svc := NewNewsService(&fakeLatest{err: errors.New("db down")}, &fakeHistory{})
	if _, err := svc.LatestArticles(context.Background(), "", 10); err == nil {
		t.Fatal("expected error")
	}
}
