package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/retry"
)

// EmbedTask tells asymmetric embedding models which side of a search the
// text is on.
type EmbedTask int

const (
	// TaskDocument embeds article text for storage.
	TaskDocument EmbedTask = iota
	// TaskQuery embeds a search query.
	TaskQuery
)

// EmbeddingProvider is a single raw call to an embedding API. Implementations
// return one vector per input, in input order, and report HTTP failures as
// *ProviderError so the adapter can classify them.
type EmbeddingProvider interface {
	Name() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
}

// ProviderError is a non-2xx answer from an external API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: status %d", e.Provider, e.StatusCode)
}

// classifyProviderError decides whether a provider failure is worth retrying.
// Transport errors, 429 and 5xx are retried; credential failures map to
// domain.ErrProviderUnauthorized; anything else is permanent.
func classifyProviderError(err error) error {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return err
	}
	switch {
	case perr.StatusCode == http.StatusUnauthorized || perr.StatusCode == http.StatusForbidden:
		return retry.Permanent(fmt.Errorf("%w: %v", domain.ErrProviderUnauthorized, err))
	case perr.StatusCode == http.StatusTooManyRequests || perr.StatusCode >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}

// EmbeddingAdapterConfig configures batching and validation.
type EmbeddingAdapterConfig struct {
	BatchSize  int
	Dimensions int
	Retry      retry.Policy
}

// EmbeddingAdapter turns texts into unit-length vectors: it batches, retries
// transient provider failures and validates every response.
type EmbeddingAdapter struct {
	provider   EmbeddingProvider
	batchSize  int
	dimensions int
	policy     retry.Policy
}

// NewEmbeddingAdapter wraps provider.
func NewEmbeddingAdapter(provider EmbeddingProvider, cfg EmbeddingAdapterConfig) *EmbeddingAdapter {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 96
	}
	return &EmbeddingAdapter{
		provider:   provider,
		batchSize:  batchSize,
		dimensions: cfg.Dimensions,
		policy:     cfg.Retry,
	}
}

// Model returns the provider's model name.
func (a *EmbeddingAdapter) Model() string {
	return a.provider.Model()
}

// Embed returns one L2-normalized vector per text, in order.
//
// Errors:
//   - domain.ErrEmbeddingUnavailable when retries are exhausted
//   - domain.ErrProviderUnauthorized when credentials are rejected
//   - domain.ErrEmbeddingMismatch when the provider's answer doesn't fit the request
func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		end := start + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := a.embedBatch(ctx, texts[start:end], TaskDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single search query. Errors are the same as Embed's.
func (a *EmbeddingAdapter) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := a.embedBatch(ctx, []string{query}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (a *EmbeddingAdapter) embedBatch(ctx context.Context, batch []string, task EmbedTask) ([][]float32, error) {
	startTime := time.Now()

	var vectors [][]float32
	err := retry.Do(ctx, a.policy, func(ctx context.Context) error {
		var err error
		vectors, err = a.provider.EmbedBatch(ctx, batch, task)
		if err != nil {
			logger.CtxWarn(ctx, "[Embedding] %s call failed: %v", a.provider.Name(), err)
			return classifyProviderError(err)
		}
		return nil
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%s after %d attempts: %w: %v", a.provider.Name(), exhausted.Attempts, domain.ErrEmbeddingUnavailable, exhausted.Last)
		}
		return nil, err
	}

	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbeddingMismatch, a.provider.Name(), len(vectors), len(batch))
	}
	for i, v := range vectors {
		if a.dimensions > 0 && len(v) != a.dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", domain.ErrEmbeddingMismatch, i, len(v), a.dimensions)
		}
		if !normalizeL2(v) {
			return nil, fmt.Errorf("%w: vector %d has zero norm", domain.ErrEmbeddingMismatch, i)
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(batch),
		"provider":        a.provider.Name(),
	}).WithDuration(time.Since(startTime)).Debug(ctx, "[Embedding] Batch embedded")

	return vectors, nil
}

// normalizeL2 scales v to unit length in place. It returns false for empty,
// zero or non-finite vectors.
func normalizeL2(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if len(v) == 0 || sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return true
}

// NewEmbeddingProvider builds the provider named by cfg.Provider.
func NewEmbeddingProvider(cfg *config.EmbeddingConfig, timeout time.Duration) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "cohere":
		return NewCohereProvider(cfg, timeout), nil
	case "jina":
		return NewJinaProvider(cfg, timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}
