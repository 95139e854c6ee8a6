package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/api/handler"
	"github.com/timmy/newsrec/internal/api/middleware"
	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/logger"
)

// Dependencies are the services behind the HTTP routes. Index may be nil, in
// which case /health skips the vector index check. Stats may be nil.
type Dependencies struct {
	News        handler.NewsLister
	Recommender handler.Recommender
	Searcher    handler.Searcher
	Pipeline    handler.PipelineRunner
	Runs        handler.RunLister
	Stats       handler.StatsReporter
	Index       handler.Pinger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, server config.ServerConfig, recommend config.RecommendConfig) *gin.Engine {
	switch server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(server.CORS))

	healthHandler := handler.NewHealthHandler(deps.Index)
	docsHandler := handler.NewDocsHandler("newsrec API")
	newsHandler := handler.NewNewsHandler(deps.News, deps.Recommender, handler.NewsConfig{
		DefaultMaxResults: recommend.MaxResults,
	})
	searchHandler := handler.NewSearchHandler(deps.Searcher, recommend.MaxResults)
	adminHandler := handler.NewAdminHandler(deps.Pipeline, deps.Runs, deps.Stats)

	r.GET("/health", healthHandler.Health)
	r.GET("/openapi.json", docsHandler.OpenAPI)
	r.GET("/docs", docsHandler.SwaggerUI)
	r.GET("/redoc", docsHandler.ReDoc)

	r.GET("/fetch-news", newsHandler.FetchNews)
	r.GET("/recommend-news", newsHandler.RecommendNews)
	r.GET("/search-news", searchHandler.SearchNews)

	admin := r.Group("/admin", middleware.AdminAuth(server.AdminToken))
	{
		admin.POST("/pipeline/run", adminHandler.TriggerPipeline)
		admin.GET("/pipeline/status", adminHandler.GetPipelineStatus)
		admin.GET("/pipeline/runs", adminHandler.ListRuns)
		admin.GET("/pipeline/runs/:id", adminHandler.GetRun)
	}

	mountFrontend(r, server.StaticDir)

	return r
}

// mountFrontend serves index.html at / and the rest of dir under /static.
func mountFrontend(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Static("/static", dir)
		} else {
			logger.Warn("Frontend directory not found at: %s", dir)
		}
	}

	r.GET("/", func(c *gin.Context) {
		if dir != "" {
			if _, err := os.Stat(index); err == nil {
				c.File(index)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  "newsrec API",
			"docs":     "/docs",
			"frontend": "Frontend not found",
		})
	})
}
