package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/service"
)

// NewsLister serves the latest-articles listing.
type NewsLister interface {
	LatestArticles(ctx context.Context, category string, limit int) (*service.NewsPage, error)
}

// Recommender serves related articles.
type Recommender interface {
	Recommend(ctx context.Context, articleID string, maxResults int) ([]service.Recommendation, error)
}

// NewsConfig holds request defaults.
type NewsConfig struct {
	DefaultLimit      int
	MaxLimit          int
	DefaultMaxResults int
}

// NewsHandler handles the public news endpoints.
type NewsHandler struct {
	news        NewsLister
	recommender Recommender
	cfg         NewsConfig
}

// NewNewsHandler creates a news handler.
func NewNewsHandler(news NewsLister, recommender Recommender, cfg NewsConfig) *NewsHandler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 500
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = 10
	}
	return &NewsHandler{news: news, recommender: recommender, cfg: cfg}
}

// FetchNews handles GET /fetch-news.
func (h *NewsHandler) FetchNews(c *gin.Context) {
	ctx := c.Request.Context()

	limit := h.cfg.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{Detail: []ValidationIssue{
				{Loc: []string{"query", "limit"}, Msg: "value is not a valid positive integer", Type: "type_error.integer"},
			}})
			return
		}
		limit = n
	}
	if limit > h.cfg.MaxLimit {
		limit = h.cfg.MaxLimit
	}
	category := strings.TrimSpace(c.Query("category"))

	page, err := h.news.LatestArticles(ctx, category, limit)
	if err != nil {
		logger.CtxError(ctx, "Error in fetch-news: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	articles := make([]ArticleResponse, 0, len(page.Articles))
	for i := range page.Articles {
		articles = append(articles, toArticleResponse(&page.Articles[i]))
	}

	resp := FetchNewsResponse{
		Status:        "success",
		Message:       fmt.Sprintf("Loaded %d processed articles", len(articles)),
		Articles:      articles,
		TotalArticles: page.Total,
	}
	if page.LastProcessed != nil {
		ts := page.LastProcessed.UTC().Format(time.RFC3339)
		resp.LastProcessed = &ts
	}

	c.JSON(http.StatusOK, resp)
}

// RecommendNews handles GET /recommend-news.
func (h *NewsHandler) RecommendNews(c *gin.Context) {
	ctx := c.Request.Context()

	var issues []ValidationIssue
	articleID := strings.TrimSpace(c.Query("article_id"))
	if articleID == "" {
		issues = append(issues, ValidationIssue{Loc: []string{"query", "article_id"}, Msg: "field required", Type: "value_error.missing"})
	}

	maxResults := h.cfg.DefaultMaxResults
	if raw, ok := c.GetQuery("max_results"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			issues = append(issues, ValidationIssue{Loc: []string{"query", "max_results"}, Msg: "value is not a valid integer", Type: "type_error.integer"})
		}
		maxResults = n
	}

	if len(issues) > 0 {
		c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{Detail: issues})
		return
	}

	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldArticleID: articleID})
	logger.CtxInfo(ctx, "Recommendation request: max_results=%d", maxResults)

	recs, err := h.recommender.Recommend(ctx, articleID, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrArticleNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: fmt.Sprintf("Article with ID '%s' not found", articleID)})
		case errors.Is(err, domain.ErrIndexUnavailable):
			logger.CtxWarn(ctx, "Vector index unavailable: %v", err)
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "vector index unavailable, try again later"})
		default:
			logger.CtxError(ctx, "Error in recommend-news: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		}
		return
	}

	articles := make([]ArticleResponse, 0, len(recs))
	for _, r := range recs {
		articles = append(articles, toRecommendationResponse(r))
	}

	c.JSON(http.StatusOK, RecommendResponse{Articles: articles, TotalResults: len(articles)})
}
