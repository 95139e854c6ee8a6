package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/prompts"
)

// Summarizer fills Article.Summary through an OpenAI-compatible chat
// completions endpoint. It is best effort: any failure leaves the batch as is.
type Summarizer struct {
	client         *resty.Client
	model          string
	endpoint       string
	batchSize      int
	rateLimitDelay time.Duration
}

// NewSummarizer creates a summarizer, or returns nil when the LLM is disabled.
// A nil *Summarizer is safe to call.
func NewSummarizer(cfg *config.LLMConfig, timeout time.Duration) *Summarizer {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	return &Summarizer{
		client:         client,
		model:          cfg.Model,
		endpoint:       strings.TrimSuffix(baseURL, "/") + "/chat/completions",
		batchSize:      batchSize,
		rateLimitDelay: cfg.RateLimitDelay,
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize sets Summary on every article that has none, in batches. It
// returns the number of articles that received a summary.
func (s *Summarizer) Summarize(ctx context.Context, articles []*domain.Article) int {
	if s == nil {
		return 0
	}

	todo := make([]*domain.Article, 0, len(articles))
	for _, a := range articles {
		if strings.TrimSpace(a.Summary) == "" {
			todo = append(todo, a)
		}
	}

	updated := 0
	for start := 0; start < len(todo); start += s.batchSize {
		if start > 0 && s.rateLimitDelay > 0 {
			select {
			case <-ctx.Done():
				return updated
			case <-time.After(s.rateLimitDelay):
			}
		}

		end := start + s.batchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]

		summaries, err := s.summarizeBatch(ctx, batch)
		if err != nil {
			logger.CtxWarn(ctx, "[Summarizer] Batch of %d skipped: %v", len(batch), err)
			continue
		}
		for i, a := range batch {
			a.Summary = summaries[i]
		}
		updated += len(batch)
	}
	return updated
}

func (s *Summarizer) summarizeBatch(ctx context.Context, batch []*domain.Article) ([]string, error) {
	inputs := make([]prompts.SummaryArticle, len(batch))
	for i, a := range batch {
		inputs[i] = prompts.SummaryArticle{Title: a.Title, Content: a.Content}
	}

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.SummarizerSystemPrompt},
			{Role: "user", Content: prompts.BuildSummaryBatchPrompt(inputs)},
		},
		MaxTokens:   150 * len(batch),
		Temperature: 0.2,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call LLM API: %w", err)
	}

	if httpResp.IsError() {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, &ProviderError{Provider: "llm", StatusCode: httpResp.StatusCode(), Message: msg}
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in LLM response")
	}

	summaries := prompts.SplitSummaries(resp.Choices[0].Message.Content, len(batch))
	if summaries == nil {
		return nil, fmt.Errorf("LLM returned a summary count that does not match %d articles", len(batch))
	}
	return summaries, nil
}
