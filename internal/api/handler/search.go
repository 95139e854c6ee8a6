package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/service"
)

// Searcher serves free-text article search.
type Searcher interface {
	Search(ctx context.Context, query, category string, limit int) ([]service.Recommendation, error)
}

// SearchHandler handles GET /search-news.
type SearchHandler struct {
	searcher          Searcher
	defaultMaxResults int
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher Searcher, defaultMaxResults int) *SearchHandler {
	if defaultMaxResults <= 0 {
		defaultMaxResults = 10
	}
	return &SearchHandler{searcher: searcher, defaultMaxResults: defaultMaxResults}
}

// SearchNews handles GET /search-news?q=&category=&max_results=.
func (h *SearchHandler) SearchNews(c *gin.Context) {
	ctx := c.Request.Context()

	var issues []ValidationIssue
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		issues = append(issues, ValidationIssue{Loc: []string{"query", "q"}, Msg: "field required", Type: "value_error.missing"})
	}

	maxResults := h.defaultMaxResults
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

	category := strings.TrimSpace(c.Query("category"))
	recs, err := h.searcher.Search(ctx, query, category, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmbeddingUnavailable):
			logger.CtxWarn(ctx, "Embedding provider unavailable: %v", err)
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "embedding provider unavailable, try again later"})
		case errors.Is(err, domain.ErrIndexUnavailable):
			logger.CtxWarn(ctx, "Vector index unavailable: %v", err)
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "vector index unavailable, try again later"})
		default:
			logger.CtxError(ctx, "Error in search-news: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		}
		return
	}

	articles := make([]ArticleResponse, 0, len(recs))
	for _, r := range recs {
		articles = append(articles, toRecommendationResponse(r))
	}

	c.JSON(http.StatusOK, SearchResponse{
		Query:        query,
		Category:     category,
		Articles:     articles,
		TotalResults: len(articles),
	})
}
