package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/newsrec/internal/config"
)

const jinaDefaultBaseURL = "https://api.jina.ai"

// JinaProvider calls the Jina embeddings API.
type JinaProvider struct {
	client     *resty.Client
	model      string
	dimensions int
}

// NewJinaProvider creates a Jina client. timeout bounds a single HTTP call.
func NewJinaProvider(cfg *config.EmbeddingConfig, timeout time.Duration) *JinaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = jinaDefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &JinaProvider{client: client, model: cfg.Model, dimensions: cfg.Dimensions}
}

// Name returns "jina".
func (p *JinaProvider) Name() string { return "jina" }

// Model returns the embedding model.
func (p *JinaProvider) Model() string { return p.model }

type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// EmbedBatch embeds texts with task retrieval.passage or retrieval.query.
func (p *JinaProvider) EmbedBatch(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	jinaTask := "retrieval.passage"
	if task == TaskQuery {
		jinaTask = "retrieval.query"
	}

	var resp jinaResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(jinaRequest{
			Model:         p.model,
			Task:          jinaTask,
			Dimensions:    p.dimensions,
			Input:         texts,
			EmbeddingType: "float",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.IsError() {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: httpResp.StatusCode(), Message: resp.Detail}
	}

	// The API may reorder; place each vector by its index
	embeddings := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}
	return embeddings, nil
}
