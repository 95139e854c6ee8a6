package handler

import (
	"time"

	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/service"
)

// maxDisplayTags limits tags on the wire; the store keeps the full list.
const maxDisplayTags = 3

// ArticleResponse is the wire form of an article.
type ArticleResponse struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Date            string   `json:"date"`
	Link            string   `json:"link"`
	Source          string   `json:"source"`
	Categories      []string `json:"categories"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	Author          string   `json:"author"`
	SimilarityScore *float32 `json:"similarity_score,omitempty"`
}

func toArticleResponse(a *domain.Article) ArticleResponse {
	tags := []string(a.Tags)
	if len(tags) > maxDisplayTags {
		tags = tags[:maxDisplayTags]
	}
	if tags == nil {
		tags = []string{}
	}
	categories := []string(a.Categories)
	if categories == nil {
		categories = []string{}
	}

	return ArticleResponse{
		ID:         a.ID,
		Title:      a.Title,
		Content:    a.Content,
		Date:       a.PublishedAt.UTC().Format(time.RFC3339),
		Link:       a.URL,
		Source:     a.Source,
		Categories: categories,
		Summary:    a.Summary,
		Tags:       tags,
		Author:     a.Author,
	}
}

func toRecommendationResponse(r service.Recommendation) ArticleResponse {
	resp := toArticleResponse(r.Article)
	score := r.Score
	resp.SimilarityScore = &score
	return resp
}

// FetchNewsResponse is the body of a successful GET /fetch-news.
type FetchNewsResponse struct {
	Status        string            `json:"status"`
	Message       string            `json:"message"`
	Articles      []ArticleResponse `json:"articles"`
	TotalArticles int64             `json:"total_articles"`
	LastProcessed *string           `json:"last_processed"`
}

// RecommendResponse is the body of a successful GET /recommend-news.
type RecommendResponse struct {
	Articles     []ArticleResponse `json:"articles"`
	TotalResults int               `json:"total_results"`
}

// SearchResponse is the body of a successful GET /search-news.
type SearchResponse struct {
	Query        string            `json:"query"`
	Category     string            `json:"category,omitempty"`
	Articles     []ArticleResponse `json:"articles"`
	TotalResults int               `json:"total_results"`
}

// ValidationIssue describes one rejected request parameter.
type ValidationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationErrorResponse is the 422 body.
type ValidationErrorResponse struct {
	Detail []ValidationIssue `json:"detail"`
}

// ErrorResponse is the body of 4xx/5xx errors other than validation.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
