package domain

import "time"

// ArticleStatus tracks whether an article's vector has reached the index.
type ArticleStatus string

const (
	ArticleStatusPending ArticleStatus = "pending"
	ArticleStatusIndexed ArticleStatus = "indexed"
	ArticleStatusFailed  ArticleStatus = "failed"
)

// MaxArticleIDLength bounds Article.ID; the hash suffix is always kept whole.
const MaxArticleIDLength = 64

// Article is a normalized news article. ID is derived from source, title and
// link, so re-ingesting the same item always lands on the same row.
type Article struct {
	ID             string        `gorm:"type:text;primaryKey" json:"id"`
	Title          string        `gorm:"type:text" json:"title"`
	Content        string        `gorm:"type:text" json:"content"`
	Summary        string        `gorm:"type:text" json:"summary"`
	URL            string        `gorm:"type:text" json:"link"`
	Source         string        `gorm:"type:text;index:idx_articles_source" json:"source"`
	FeedURL        string        `gorm:"type:text" json:"feed_url,omitempty"`
	Author         string        `gorm:"type:text" json:"author,omitempty"`
	PublishedAt    time.Time     `gorm:"index:idx_articles_published" json:"date"`
	Categories     StringArray   `gorm:"type:text" json:"categories"`
	Tags           StringArray   `gorm:"type:text" json:"tags"`
	ContentHash    string        `gorm:"type:text" json:"-"`
	Status         ArticleStatus `gorm:"type:text;index:idx_articles_status;default:pending" json:"status"`
	EmbeddingModel string        `gorm:"type:text" json:"-"`
	FetchedAt      time.Time     `json:"fetched_at"`
	IndexedAt      *time.Time    `json:"indexed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Article.
func (Article) TableName() string {
	return "articles"
}

// Category returns the primary category, used as the vector payload's category.
func (a *Article) Category() string {
	return a.Categories.First()
}
