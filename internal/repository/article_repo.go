package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/timmy/newsrec/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertColumns are overwritten when an article id already exists.
// created_at is left alone so the first-seen time survives re-ingestion.
var upsertColumns = []string{
	"title", "content", "summary", "url", "source", "feed_url", "author",
	"published_at", "categories", "tags", "content_hash", "status",
	"embedding_model", "fetched_at", "indexed_at", "updated_at",
}

// ArticleRepository handles article persistence.
type ArticleRepository struct {
	db *gorm.DB
}

// NewArticleRepository creates a new ArticleRepository.
func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// UpsertBatch inserts or replaces articles keyed by id, in chunks of 100.
func (r *ArticleRepository) UpsertBatch(ctx context.Context, articles []*domain.Article) error {
	if len(articles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).CreateInBatches(articles, 100).Error
}

// GetByIDs loads the given articles keyed by id. Unknown ids are absent from the map.
func (r *ArticleRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Article, error) {
	out := make(map[string]*domain.Article, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var articles []domain.Article
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&articles).Error; err != nil {
		return nil, err
	}
	for i := range articles {
		out[articles[i].ID] = &articles[i]
	}
	return out, nil
}

// ListPending returns articles that were stored but never made it into the index.
func (r *ArticleRepository) ListPending(ctx context.Context, limit int) ([]*domain.Article, error) {
	var articles []*domain.Article
	q := r.db.WithContext(ctx).
		Where("status = ?", domain.ArticleStatusPending).
		Order("fetched_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// MarkIndexed flips the given articles to indexed.
func (r *ArticleRepository) MarkIndexed(ctx context.Context, ids []string, model string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Article{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":          domain.ArticleStatusIndexed,
			"embedding_model": model,
			"indexed_at":      at,
		}).Error
}

// ListLatest returns the newest articles, optionally restricted to one category,
// plus the total number matching.
func (r *ArticleRepository) ListLatest(ctx context.Context, category string, limit int) ([]domain.Article, int64, error) {
	inCategory := func(db *gorm.DB) *gorm.DB {
		if category == "" {
			return db
		}
		return db.Where(`categories LIKE ? ESCAPE '\'`, categoryPattern(category))
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Article{}).Scopes(inCategory).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var articles []domain.Article
	err := r.db.WithContext(ctx).Scopes(inCategory).
		Order("published_at DESC").
		Limit(limit).
		Find(&articles).Error
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// likeEscaper escapes LIKE wildcards with a backslash.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// categoryPattern matches category as one element of the JSON array stored
// in the categories column.
func categoryPattern(category string) string {
	encoded, _ := json.Marshal(category)
	return "%" + likeEscaper.Replace(string(encoded)) + "%"
}

// CountByStatus returns the number of articles with the given status.
func (r *ArticleRepository) CountByStatus(ctx context.Context, status domain.ArticleStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Article{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
