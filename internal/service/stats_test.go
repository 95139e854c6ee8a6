package service

import (
	"context"
	"errors"
	"testing"

	"github.com/timmy/newsrec/internal/domain"
)

func TestCollectionStats(t *testing.T) {
	index := newMemIndex()
	index.put(testNamespace, "a", []float32{1, 0})
	index.put(testNamespace, "b", []float32{0, 1})
	index.put("other", "c", []float32{1, 1})

	store := newMemStore(
		&domain.Article{ID: "a", Status: domain.ArticleStatusIndexed},
		&domain.Article{ID: "b", Status: domain.ArticleStatusIndexed},
		&domain.Article{ID: "d", Status: domain.ArticleStatusPending},
		&domain.Article{ID: "e", Status: domain.ArticleStatusFailed},
	)

	stats, err := NewStatsService(index, store, testNamespace).CollectionStats(context.Background())
	if err != nil {
		t.Fatalf("CollectionStats() error = %v", err)
	}
	want := CollectionStats{
		Namespace:       testNamespace,
		IndexedVectors:  2,
		PendingArticles: 1,
		IndexedArticles: 2,
		FailedArticles:  1,
	}
	if *stats != want {
		t.Fatalf("CollectionStats() = %+v, want %+v", *stats, want)
	}
}

func TestCollectionStatsIndexDown(t *testing.T) {
	index := newMemIndex()
	index.queryErr = domain.ErrIndexUnavailable

	_, err := NewStatsService(index, newMemStore(), testNamespace).CollectionStats(context.Background())
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
}
