package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/newsrec/internal/config"
)

const cohereDefaultBaseURL = "https://api.cohere.com"

// CohereProvider calls the Cohere v2 embed API.
type CohereProvider struct {
	client *resty.Client
	model  string
}

// NewCohereProvider creates a Cohere client. timeout bounds a single HTTP call.
func NewCohereProvider(cfg *config.EmbeddingConfig, timeout time.Duration) *CohereProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cohereDefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &CohereProvider{client: client, model: cfg.Model}
}

// Name returns "cohere".
func (p *CohereProvider) Name() string { return "cohere" }

// Model returns the embedding model.
func (p *CohereProvider) Model() string { return p.model }

type cohereEmbedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
	Truncate       string   `json:"truncate,omitempty"`
}

type cohereEmbedResponse struct {
	ID         string `json:"id"`
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message,omitempty"`
}

// EmbedBatch embeds texts with input_type search_document or search_query.
func (p *CohereProvider) EmbedBatch(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	inputType := "search_document"
	if task == TaskQuery {
		inputType = "search_query"
	}

	var resp cohereEmbedResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(cohereEmbedRequest{
			Model:          p.model,
			Texts:          texts,
			InputType:      inputType,
			EmbeddingTypes: []string{"float"},
			Truncate:       "END",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/v2/embed")
	if err != nil {
		return nil, fmt.Errorf("failed to call Cohere API: %w", err)
	}

	if httpResp.IsError() {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: httpResp.StatusCode(), Message: resp.Message}
	}

	return resp.Embeddings.Float, nil
}
