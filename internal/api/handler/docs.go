package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocsHandler serves the OpenAPI document and the Swagger UI / ReDoc pages.
type DocsHandler struct {
	title string
}

// NewDocsHandler creates a docs handler.
func NewDocsHandler(title string) *DocsHandler {
	if title == "" {
		title = "newsrec API"
	}
	return &DocsHandler{title: title}
}

// OpenAPI handles GET /openapi.json.
func (h *DocsHandler) OpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(openAPIDocument))
}

// SwaggerUI handles GET /docs.
func (h *DocsHandler) SwaggerUI(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>` + h.title + ` - Swagger UI</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.ui = SwaggerUIBundle({ url: '/openapi.json', dom_id: '#swagger-ui' });
    </script>
</body>
</html>`
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}

// ReDoc handles GET /redoc.
func (h *DocsHandler) ReDoc(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>` + h.title + ` - ReDoc</title>
</head>
<body>
    <redoc spec-url="/openapi.json"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>`
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}

const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": {
    "title": "newsrec API",
    "description": "RSS news aggregation with related-article recommendations",
    "version": "1.0.0"
  },
  "paths": {
    "/fetch-news": {
      "get": {
        "summary": "Latest processed articles",
        "parameters": [
          {"name": "category", "in": "query", "required": false, "schema": {"type": "string"}},
          {"name": "limit", "in": "query", "required": false, "schema": {"type": "integer", "default": 50}}
        ],
        "responses": {
          "200": {"description": "Articles", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/FetchNewsResponse"}}}},
          "422": {"description": "Invalid parameters", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ValidationError"}}}},
          "500": {"description": "Store failure"}
        }
      }
    },
    "/recommend-news": {
      "get": {
        "summary": "Articles related to an existing article",
        "parameters": [
          {"name": "article_id", "in": "query", "required": true, "schema": {"type": "string"}},
          {"name": "max_results", "in": "query", "required": false, "schema": {"type": "integer", "default": 10}}
        ],
        "responses": {
          "200": {"description": "Related articles", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/RecommendResponse"}}}},
          "404": {"description": "Unknown article id", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}},
          "422": {"description": "Invalid parameters", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ValidationError"}}}},
          "503": {"description": "Vector index unavailable", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}
        }
      }
    },
    "/search-news": {
      "get": {
        "summary": "Articles matching a free-text query",
        "parameters": [
          {"name": "q", "in": "query", "required": true, "schema": {"type": "string"}},
          {"name": "category", "in": "query", "required": false, "schema": {"type": "string"}},
          {"name": "max_results", "in": "query", "required": false, "schema": {"type": "integer", "default": 10}}
        ],
        "responses": {
          "200": {"description": "Matching articles", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/SearchResponse"}}}},
          "422": {"description": "Invalid parameters", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ValidationError"}}}},
          "503": {"description": "Embedding provider or vector index unavailable", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}
        }
      }
    },
    "/health": {
      "get": {"summary": "Health check", "responses": {"200": {"description": "Healthy"}, "503": {"description": "Index unreachable"}}}
    },
    "/admin/pipeline/run": {
      "post": {"summary": "Start a pipeline run", "responses": {"202": {"description": "Started; body carries run_id"}, "401": {"description": "Bad admin token"}, "409": {"description": "Already running"}}}
    },
    "/admin/pipeline/status": {
      "get": {"summary": "Current pipeline status and collection stats", "responses": {"200": {"description": "Status"}}}
    },
    "/admin/pipeline/runs": {
      "get": {"summary": "Recent pipeline runs", "responses": {"200": {"description": "Runs"}}}
    },
    "/admin/pipeline/runs/{id}": {
      "get": {
        "summary": "One pipeline run",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Run"}, "404": {"description": "Unknown run id"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Article": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "title": {"type": "string"},
          "content": {"type": "string"},
          "date": {"type": "string", "format": "date-time"},
          "link": {"type": "string"},
          "source": {"type": "string"},
          "categories": {"type": "array", "items": {"type": "string"}},
          "summary": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
          "author": {"type": "string"},
          "similarity_score": {"type": "number"}
        }
      },
      "FetchNewsResponse": {
        "type": "object",
        "properties": {
          "status": {"type": "string"},
          "message": {"type": "string"},
          "articles": {"type": "array", "items": {"$ref": "#/components/schemas/Article"}},
          "total_articles": {"type": "integer"},
          "last_processed": {"type": "string", "format": "date-time", "nullable": true}
        }
      },
      "RecommendResponse": {
        "type": "object",
        "properties": {
          "articles": {"type": "array", "items": {"$ref": "#/components/schemas/Article"}},
          "total_results": {"type": "integer"}
        }
      },
      "SearchResponse": {
        "type": "object",
        "properties": {
          "query": {"type": "string"},
          "category": {"type": "string"},
          "articles": {"type": "array", "items": {"$ref": "#/components/schemas/Article"}},
          "total_results": {"type": "integer"}
        }
      },
      "Error": {"type": "object", "properties": {"detail": {"type": "string"}}},
      "ValidationError": {
        "type": "object",
        "properties": {
          "detail": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "loc": {"type": "array", "items": {"type": "string"}},
                "msg": {"type": "string"},
                "type": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`
