package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/retry"
)

var testRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, CallTimeout: time.Second}

// scriptedProvider returns queued errors first, then vectors built by vec.
type scriptedProvider struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	batches [][]string
	tasks   []EmbedTask
	vec     func(text string) []float32
	extra   int // vectors added to every answer
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-v1" }

func (p *scriptedProvider) EmbedBatch(_ context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	p.batches = append(p.batches, append([]string(nil), texts...))
	p.tasks = append(p.tasks, task)
	out := make([][]float32, 0, len(texts)+p.extra)
	for _, t := range texts {
		out = append(out, p.vec(t))
	}
	for i := 0; i < p.extra; i++ {
		out = append(out, []float32{1, 0})
	}
	return out, nil
}

func constVec(v ...float32) func(string) []float32 {
	return func(string) []float32 { return append([]float32(nil), v...) }
}

func TestEmbeddingAdapterBatchesAndNormalizes(t *testing.T) {
	p := &scriptedProvider{vec: constVec(3, 4)}
	a := NewEmbeddingAdapter(p, EmbeddingAdapterConfig{BatchSize: 2, Dimensions: 2, Retry: testRetry})

	got, err := a.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if len(p.batches) != 3 || len(p.batches[2]) != 1 {
		t.Fatalf("batches = %v", p.batches)
	}
	if math.Abs(float64(got[0][0])-0.6) > 1e-6 || math.Abs(float64(got[0][1])-0.8) > 1e-6 {
		t.Fatalf("vector not normalized: %v", got[0])
	}
}

func TestEmbeddingAdapterEmbedQuery(t *testing.T) {
	p := &scriptedProvider{vec: constVec(0, 2)}
	a := NewEmbeddingAdapter(p, EmbeddingAdapterConfig{Dimensions: 2, Retry: testRetry})

	got, err := a.EmbedQuery(context.Background(), "interest rates")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(got) != 2 || got[1] != 1 {
		t.Fatalf("EmbedQuery() = %v, want unit vector", got)
	}
	if len(p.tasks) != 1 || p.tasks[0] != TaskQuery {
		t.Fatalf("tasks = %v, want [TaskQuery]", p.tasks)
	}

	if _, err := a.Embed(context.Background(), []string{"doc"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if p.tasks[1] != TaskDocument {
		t.Fatalf("Embed() task = %v, want TaskDocument", p.tasks[1])
	}
}

func TestEmbeddingAdapterEmptyInput(t *testing.T) {
	p := &scriptedProvider{vec: constVec(1)}
	got, err := NewEmbeddingAdapter(p, EmbeddingAdapterConfig{Retry: testRetry}).Embed(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Embed(nil) = %v, %v", got, err)
	}
	if p.calls != 0 {
		t.Fatalf("provider called %d times for empty input", p.calls)
	}
}

func TestEmbeddingAdapterErrors(t *testing.T) {
	transport := errors.New("connection reset")

	tests := []struct {
		name      string
		errs      []error
		vec       func(string) []float32
		extra     int
		dims      int
		wantErr   error
		wantCalls int
	}{
		{
			name:      "recovers from 429",
			errs:      []error{&ProviderError{StatusCode: 429}, transport},
			vec:       constVec(1, 0),
			dims:      2,
			wantCalls: 3,
		},
		{
			name:      "exhausted on 503",
			errs:      []error{&ProviderError{StatusCode: 503}, &ProviderError{StatusCode: 503}, &ProviderError{StatusCode: 503}},
			vec:       constVec(1, 0),
			wantErr:   domain.ErrEmbeddingUnavailable,
			wantCalls: 3,
		},
		{
			name:      "unauthorized is not retried",
			errs:      []error{&ProviderError{StatusCode: 401, Message: "invalid api token"}},
			vec:       constVec(1, 0),
			wantErr:   domain.ErrProviderUnauthorized,
			wantCalls: 1,
		},
		{
			name:      "forbidden is not retried",
			errs:      []error{&ProviderError{StatusCode: 403}},
			vec:       constVec(1, 0),
			wantErr:   domain.ErrProviderUnauthorized,
			wantCalls: 1,
		},
		{
			name:      "wrong count",
			vec:       constVec(1, 0),
			extra:     1,
			wantErr:   domain.ErrEmbeddingMismatch,
			wantCalls: 1,
		},
		{
			name:      "wrong dimension",
			vec:       constVec(1, 0, 0),
			dims:      2,
			wantErr:   domain.ErrEmbeddingMismatch,
			wantCalls: 1,
		},
		{
			name:      "zero vector",
			vec:       constVec(0, 0),
			wantErr:   domain.ErrEmbeddingMismatch,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{errs: tt.errs, vec: tt.vec, extra: tt.extra}
			a := NewEmbeddingAdapter(p, EmbeddingAdapterConfig{BatchSize: 10, Dimensions: tt.dims, Retry: testRetry})

			_, err := a.Embed(context.Background(), []string{"x"})
			if p.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", p.calls, tt.wantCalls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmbeddingAdapterBadRequestIsPermanent(t *testing.T) {
	p := &scriptedProvider{errs: []error{&ProviderError{StatusCode: 400, Message: "too long"}}, vec: constVec(1)}
	_, err := NewEmbeddingAdapter(p, EmbeddingAdapterConfig{Retry: testRetry}).Embed(context.Background(), []string{"x"})

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 400 {
		t.Fatalf("err = %v, want ProviderError 400", err)
	}
	if errors.Is(err, domain.ErrEmbeddingUnavailable) || p.calls != 1 {
		t.Fatalf("400 must fail fast, calls = %d", p.calls)
	}
}

func TestCohereProvider(t *testing.T) {
	var got cohereEmbedRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/embed" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","embeddings":{"float":[[0.1,0.2],[0.3,0.4]]}}`))
	}))
	defer srv.Close()

	p := NewCohereProvider(&config.EmbeddingConfig{Model: "embed-english-v3.0", APIKey: "key", BaseURL: srv.URL}, 5*time.Second)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"}, TaskDocument)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 0.4 {
		t.Fatalf("vectors = %v", vecs)
	}
	if auth != "Bearer key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.InputType != "search_document" || got.Model != "embed-english-v3.0" || len(got.Texts) != 2 {
		t.Errorf("request = %+v", got)
	}

	if _, err := p.EmbedBatch(context.Background(), []string{"a", "b"}, TaskQuery); err != nil {
		t.Fatalf("EmbedBatch(query) error = %v", err)
	}
	if got.InputType != "search_query" {
		t.Errorf("query input_type = %q, want search_query", got.InputType)
	}
}

func TestCohereProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewCohereProvider(&config.EmbeddingConfig{Model: "m", APIKey: "k", BaseURL: srv.URL}, 5*time.Second)
	_, err := p.EmbedBatch(context.Background(), []string{"a"}, TaskDocument)

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 429 || perr.Message != "rate limited" {
		t.Fatalf("err = %v", err)
	}
}

func TestJinaProviderOrdersByIndex(t *testing.T) {
	var got jinaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[2,2],"index":1},{"embedding":[1,1],"index":0}]}`))
	}))
	defer srv.Close()

	p := NewJinaProvider(&config.EmbeddingConfig{Model: "jina-embeddings-v3", APIKey: "k", BaseURL: srv.URL, Dimensions: 2}, 5*time.Second)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"}, TaskQuery)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("vectors = %v", vecs)
	}
	if got.Task != "retrieval.query" {
		t.Errorf("task = %q, want retrieval.query", got.Task)
	}
}

func TestNewEmbeddingProvider(t *testing.T) {
	for _, name := range []string{"cohere", "jina"} {
		p, err := NewEmbeddingProvider(&config.EmbeddingConfig{Provider: name, Model: "m"}, time.Second)
		if err != nil || p.Name() != name {
			t.Errorf("NewEmbeddingProvider(%s) = %v, %v", name, p, err)
		}
	}
	if _, err := NewEmbeddingProvider(&config.EmbeddingConfig{Provider: "nope"}, time.Second); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("unknown provider err = %v", err)
	}
}
