package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/newsrec/internal/api/middleware"
	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/service"
)

type nopNews struct{}

func (nopNews) LatestArticles(context.Context, string, int) (*service.NewsPage, error) {
	return &service.NewsPage{}, nil
}

type nopRecommender struct{}

func (nopRecommender) Recommend(context.Context, string, int) ([]service.Recommendation, error) {
	return nil, nil
}

type nopSearcher struct{}

func (nopSearcher) Search(context.Context, string, string, int) ([]service.Recommendation, error) {
	return nil, nil
}

type busyPipeline struct{}

func (busyPipeline) Start(context.Context, func(*service.RunResult, error)) (string, error) {
	return "", service.ErrPipelineRunning
}
func (busyPipeline) Running() bool                { return true }
func (busyPipeline) LastRun() *domain.PipelineRun { return nil }

type nopRuns struct{}

func (nopRuns) ListRecent(context.Context, int) ([]domain.PipelineRun, error) { return nil, nil }
func (nopRuns) GetByID(context.Context, string) (*domain.PipelineRun, error)  { return nil, nil }

func testRouter(t *testing.T, server config.ServerConfig) http.Handler {
	t.Helper()
	server.Mode = "test"
	return SetupRouter(Dependencies{
		News:        nopNews{},
		Recommender: nopRecommender{},
		Searcher:    nopSearcher{},
		Pipeline:    busyPipeline{},
		Runs:        nopRuns{},
	}, server, config.RecommendConfig{MaxResults: 10})
}

func serve(h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	r := testRouter(t, config.ServerConfig{})

	tests := []struct {
		target      string
		want        int
		contentType string
	}{
		{"/health", http.StatusOK, "application/json"},
		{"/openapi.json", http.StatusOK, "application/json"},
		{"/docs", http.StatusOK, "text/html"},
		{"/redoc", http.StatusOK, "text/html"},
		{"/fetch-news", http.StatusOK, "application/json"},
		{"/recommend-news", http.StatusUnprocessableEntity, "application/json"},
		{"/search-news", http.StatusUnprocessableEntity, "application/json"},
		{"/search-news?q=rates", http.StatusOK, "application/json"},
		{"/", http.StatusOK, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.target, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Errorf("missing request id header")
			}
		})
	}
}

func TestAdminToken(t *testing.T) {
	r := testRouter(t, config.ServerConfig{AdminToken: "s3cret"})

	if w := serve(r, http.MethodGet, "/admin/pipeline/status", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/admin/pipeline/status", map[string]string{middleware.AdminTokenHeader: "s3cret"}); w.Code != http.StatusOK {
		t.Fatalf("with token: status = %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/admin/pipeline/run", map[string]string{middleware.AdminTokenHeader: "s3cret"}); w.Code != http.StatusConflict {
		t.Fatalf("busy pipeline: status = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/admin/pipeline/runs/nope", map[string]string{middleware.AdminTokenHeader: "s3cret"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown run: status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	r := testRouter(t, config.ServerConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"https://app.test"}}})

	w := serve(r, http.MethodOptions, "/fetch-news", map[string]string{"Origin": "https://app.test"})
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "https://app.test" {
		t.Fatalf("allowed origin: status = %d, headers = %v", w.Code, w.Header())
	}

	w = serve(r, http.MethodGet, "/fetch-news", map[string]string{"Origin": "https://evil.test"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin got CORS headers")
	}
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>news</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := testRouter(t, config.ServerConfig{StaticDir: dir})

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "news") {
		t.Fatalf("index: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/static/index.html", nil); w.Code != http.StatusOK && w.Code != http.StatusMovedPermanently {
		t.Fatalf("static: status = %d", w.Code)
	}
}
