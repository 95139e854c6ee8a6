package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/repository"
	"github.com/timmy/newsrec/internal/source"
	"github.com/timmy/newsrec/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ErrPipelineRunning is returned when a run is requested while another is active.
var ErrPipelineRunning = errors.New("pipeline is already running")

// Embedder produces unit-length vectors. EmbeddingAdapter implements it.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RunStore persists pipeline run records. repository.RunRepository implements it.
type RunStore interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	Save(ctx context.Context, run *domain.PipelineRun) error
}

// PipelineConfig holds the orchestrator's tunables.
type PipelineConfig struct {
	Namespace          string
	Workers            int
	BatchSize          int
	MaxArticlesPerFeed int
	PendingLimit       int
	Now                func() time.Time
}

// PipelineDeps are the collaborators of a Pipeline. Summarizer and Archiver
// may be nil.
type PipelineDeps struct {
	Sources    []source.Source
	Normalizer *Normalizer
	Embedder   Embedder
	Summarizer *Summarizer
	Index      VectorIndex
	Articles   ArticleStore
	Runs       RunStore
	Archiver   *storage.Archiver
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID    string
	Status   domain.RunStatus
	Stats    domain.RunStats
	Duration time.Duration
}

// Pipeline drives fetch → normalize → embed → index. Only one run is active
// at a time.
type Pipeline struct {
	deps PipelineDeps
	cfg  PipelineConfig

	running atomic.Bool
	mu      sync.RWMutex
	last    *domain.PipelineRun
}

// NewPipeline creates a pipeline.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastRun returns a copy of the active or most recent run, or nil.
func (p *Pipeline) LastRun() *domain.PipelineRun {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil
	}
	cp := *p.last
	return &cp
}

// Run fetches every source and indexes new or changed articles, plus any
// articles left pending by earlier runs. A non-nil error means the run
// ended in the failed state; the result is still returned.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	run, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	return p.complete(ctx, run, true)
}

// Start begins a full run in the background and returns its id once the run
// is recorded. ErrPipelineRunning is returned synchronously when another run
// is active. ctx must outlive the caller if the caller is a request; done, if
// non-nil, receives the outcome.
func (p *Pipeline) Start(ctx context.Context, done func(*RunResult, error)) (string, error) {
	run, err := p.begin(ctx)
	if err != nil {
		return "", err
	}
	go func() {
		result, err := p.complete(ctx, run, true)
		if done != nil {
			done(result, err)
		}
	}()
	return run.ID, nil
}

// RetryPending indexes only articles left pending by earlier runs.
func (p *Pipeline) RetryPending(ctx context.Context) (*RunResult, error) {
	run, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	return p.complete(ctx, run, false)
}

// begin claims the pipeline and records a new run. On success the caller
// must hand the run to complete, which releases the claim.
func (p *Pipeline) begin(ctx context.Context) (*domain.PipelineRun, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrPipelineRunning
	}

	run := &domain.PipelineRun{
		ID:        uuid.New().String(),
		Status:    domain.RunStatusFetching,
		StartedAt: p.cfg.Now(),
	}
	if err := p.deps.Runs.Create(ctx, run); err != nil {
		p.running.Store(false)
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}
	p.publish(run)
	return run, nil
}

func (p *Pipeline) complete(ctx context.Context, run *domain.PipelineRun, fetch bool) (*RunResult, error) {
	defer p.running.Store(false)

	ctx = logger.SetRunID(ctx, run.ID)
	logger.CtxInfo(ctx, "[Pipeline] Run started (fetch=%v, sources=%d)", fetch, len(p.deps.Sources))

	err := p.stages(ctx, run, fetch)

	completed := p.cfg.Now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorLog = err.Error()
	} else {
		run.Status = domain.RunStatusDone
	}
	p.save(context.WithoutCancel(ctx), run)

	result := &RunResult{
		RunID:    run.ID,
		Status:   run.Status,
		Stats:    run.RunStats,
		Duration: completed.Sub(run.StartedAt),
	}

	entry := logger.With(logger.Fields{
		"fetched":      run.Fetched,
		"feed_errors":  run.FeedErrors,
		"malformed":    run.Malformed,
		"duplicates":   run.Duplicates,
		"deduplicated": run.Deduplicated,
		"skipped":      run.SkippedUnchanged,
		"retried":      run.Retried,
		"embedded":     run.Embedded,
		"indexed":      run.Indexed,
		"failed":       run.Failed,
	}).WithStatus(string(run.Status)).WithDuration(result.Duration)
	if err != nil {
		entry.Error(ctx, "[Pipeline] Run failed: %v", err)
		return result, err
	}
	entry.Info(ctx, "[Pipeline] Run completed")
	return result, nil
}

func (p *Pipeline) stages(ctx context.Context, run *domain.PipelineRun, fetch bool) error {
	var work []*domain.Article

	if fetch {
		entries := p.fetch(ctx, run)
		if err := ctx.Err(); err != nil {
			return err
		}

		p.transition(ctx, run, domain.RunStatusNormalizing)
		var err error
		work, err = p.normalize(ctx, run, entries)
		if err != nil {
			return err
		}
	} else {
		p.transition(ctx, run, domain.RunStatusNormalizing)
	}

	pending, err := p.deps.Articles.ListPending(ctx, p.cfg.PendingLimit)
	if err != nil {
		return fmt.Errorf("failed to list pending articles: %w", err)
	}
	inWork := make(map[string]struct{}, len(work))
	for _, a := range work {
		inWork[a.ID] = struct{}{}
	}
	for _, a := range pending {
		if _, ok := inWork[a.ID]; ok {
			continue
		}
		work = append(work, a)
		run.Retried++
	}

	if len(work) == 0 {
		return nil
	}

	if err := p.deps.Index.Ping(ctx); err != nil {
		return fmt.Errorf("vector index preflight failed: %w", err)
	}

	p.transition(ctx, run, domain.RunStatusEmbedding)
	batches, err := p.embed(ctx, run, work)
	if err != nil {
		return err
	}

	p.transition(ctx, run, domain.RunStatusIndexing)
	return p.index(ctx, run, batches)
}

type labeledEntries struct {
	label   string
	entries []source.RawEntry
}

// fetch pulls every source. A failing feed is counted and skipped.
func (p *Pipeline) fetch(ctx context.Context, run *domain.PipelineRun) []labeledEntries {
	ctx = logger.SetStage(ctx, string(domain.RunStatusFetching))

	out := make([]labeledEntries, 0, len(p.deps.Sources))
	for _, src := range p.deps.Sources {
		if ctx.Err() != nil {
			break
		}

		startTime := time.Now()
		entries, err := src.Fetch(ctx, p.cfg.MaxArticlesPerFeed)
		if err != nil {
			run.FeedErrors++
			logger.With(logger.Fields{logger.FieldSource: src.GetSourceID()}).
				WithDuration(time.Since(startTime)).
				Warn(ctx, "[Pipeline] Feed fetch failed: %v", err)
			continue
		}

		logger.With(logger.Fields{logger.FieldSource: src.GetSourceID()}).
			WithCount(len(entries)).
			WithDuration(time.Since(startTime)).
			Debug(ctx, "[Pipeline] Feed fetched")

		if _, err := p.deps.Archiver.Archive(ctx, run.ID, src.GetSourceID(), entries); err != nil {
			logger.CtxWarn(ctx, "[Pipeline] Failed to archive batch from %s: %v", src.GetSourceID(), err)
		}

		run.Fetched += len(entries)
		out = append(out, labeledEntries{label: src.GetSourceID(), entries: entries})
	}
	return out
}

// normalize builds articles, drops duplicates and unchanged indexed articles,
// and stores the rest as pending.
func (p *Pipeline) normalize(ctx context.Context, run *domain.PipelineRun, batches []labeledEntries) ([]*domain.Article, error) {
	ctx = logger.SetStage(ctx, string(domain.RunStatusNormalizing))

	var articles []*domain.Article
	for _, b := range batches {
		for _, entry := range b.entries {
			a, err := p.deps.Normalizer.Normalize(entry, b.label)
			if err != nil {
				if errors.Is(err, domain.ErrMalformedEntry) {
					run.Malformed++
					logger.CtxDebug(ctx, "[Pipeline] %v", err)
					continue
				}
				return nil, err
			}
			articles = append(articles, a)
		}
	}

	unique, dropped := Dedupe(articles)
	run.Duplicates = dropped
	run.Deduplicated = len(unique)
	if len(unique) == 0 {
		return nil, nil
	}

	ids := make([]string, len(unique))
	for i, a := range unique {
		ids[i] = a.ID
	}
	existing, err := p.deps.Articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing articles: %w", err)
	}

	now := p.cfg.Now()
	work := make([]*domain.Article, 0, len(unique))
	for _, a := range unique {
		if prev, ok := existing[a.ID]; ok && prev.Status == domain.ArticleStatusIndexed && prev.ContentHash == a.ContentHash {
			run.SkippedUnchanged++
			continue
		}
		a.Status = domain.ArticleStatusPending
		a.FetchedAt = now
		work = append(work, a)
	}

	if n := p.deps.Summarizer.Summarize(ctx, work); n > 0 {
		logger.CtxInfo(ctx, "[Pipeline] Summarized %d articles", n)
	}

	if len(work) > 0 {
		if err := p.deps.Articles.UpsertBatch(ctx, work); err != nil {
			return nil, fmt.Errorf("failed to store articles: %w", err)
		}
	}
	return work, nil
}

type embeddedBatch struct {
	articles []*domain.Article
	vectors  [][]float32
}

func (p *Pipeline) split(work []*domain.Article) [][]*domain.Article {
	var out [][]*domain.Article
	for start := 0; start < len(work); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(work) {
			end = len(work)
		}
		out = append(out, work[start:end])
	}
	return out
}

// embed embeds every batch with bounded parallelism. Batches whose provider
// stayed unavailable are counted as failed and left pending; if that happened
// to every batch the provider is down and the run fails.
func (p *Pipeline) embed(ctx context.Context, run *domain.PipelineRun, work []*domain.Article) ([]embeddedBatch, error) {
	ctx = logger.SetStage(ctx, string(domain.RunStatusEmbedding))

	chunks := p.split(work)
	results := make([]*embeddedBatch, len(chunks))
	var embedded, failed, unavailable atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for j, a := range chunk {
				texts[j] = p.deps.Normalizer.EmbeddingText(a)
			}

			vectors, err := p.deps.Embedder.Embed(gctx, texts)
			if err != nil {
				if batchRecoverable(err) {
					failed.Add(int64(len(chunk)))
					if errors.Is(err, domain.ErrEmbeddingUnavailable) {
						unavailable.Add(1)
					}
					logger.CtxWarn(gctx, "[Pipeline] Embedding batch of %d failed: %v", len(chunk), err)
					return nil
				}
				return err
			}
			embedded.Add(int64(len(chunk)))
			results[i] = &embeddedBatch{articles: chunk, vectors: vectors}
			return nil
		})
	}
	err := g.Wait()

	run.Embedded += int(embedded.Load())
	run.Failed += int(failed.Load())
	if err != nil {
		return nil, fmt.Errorf("embedding stage: %w", err)
	}
	if n := int(unavailable.Load()); n > 0 && n == len(chunks) {
		return nil, fmt.Errorf("embedding provider unreachable for all %d batches: %w", n, domain.ErrEmbeddingUnavailable)
	}

	out := make([]embeddedBatch, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// index upserts vectors and marks the articles indexed. When no batch got
// through and the index itself stopped answering, the run fails.
func (p *Pipeline) index(ctx context.Context, run *domain.PipelineRun, batches []embeddedBatch) error {
	ctx = logger.SetStage(ctx, string(domain.RunStatusIndexing))

	var indexed, failed, unavailable atomic.Int64
	model := p.deps.Embedder.Model()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, b := range batches {
		g.Go(func() error {
			records := make([]repository.VectorRecord, len(b.articles))
			ids := make([]string, len(b.articles))
			for i, a := range b.articles {
				ids[i] = a.ID
				records[i] = repository.VectorRecord{
					ArticleID: a.ID,
					Vector:    b.vectors[i],
					Payload:   articlePayload(a, p.cfg.Namespace),
				}
			}

			if err := p.deps.Index.Upsert(gctx, records, p.cfg.Namespace); err != nil {
				if batchRecoverable(err) {
					failed.Add(int64(len(ids)))
					if errors.Is(err, domain.ErrIndexUnavailable) {
						unavailable.Add(1)
					}
					logger.CtxWarn(gctx, "[Pipeline] Index batch of %d failed: %v", len(ids), err)
					return nil
				}
				return err
			}

			if err := p.deps.Articles.MarkIndexed(gctx, ids, model, p.cfg.Now()); err != nil {
				return fmt.Errorf("failed to mark articles indexed: %w", err)
			}
			indexed.Add(int64(len(ids)))
			return nil
		})
	}
	err := g.Wait()

	run.Indexed += int(indexed.Load())
	run.Failed += int(failed.Load())
	if err != nil {
		return fmt.Errorf("indexing stage: %w", err)
	}

	if indexed.Load() == 0 && unavailable.Load() > 0 {
		if err := p.deps.Index.Ping(ctx); err != nil {
			return fmt.Errorf("vector index unreachable after %d failed batches: %w", unavailable.Load(), err)
		}
	}
	return nil
}

// batchRecoverable reports whether a batch error should only fail that batch.
// Credential, consistency and cancellation errors stop the whole run.
func batchRecoverable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrProviderUnauthorized),
		errors.Is(err, domain.ErrEmbeddingMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func articlePayload(a *domain.Article, namespace string) repository.ArticlePayload {
	return repository.ArticlePayload{
		ArticleID: a.ID,
		Namespace: namespace,
		Title:     a.Title,
		Link:      a.URL,
		Source:    a.Source,
		Category:  a.Category(),
		Published: a.PublishedAt.UTC().Format(time.RFC3339),
		Tags:      a.Tags,
	}
}

func (p *Pipeline) transition(ctx context.Context, run *domain.PipelineRun, status domain.RunStatus) {
	run.Status = status
	p.save(ctx, run)
	logger.CtxDebug(ctx, "[Pipeline] Stage %s", status)
}

// save persists run progress. Bookkeeping failures are logged, not fatal.
func (p *Pipeline) save(ctx context.Context, run *domain.PipelineRun) {
	if err := p.deps.Runs.Save(ctx, run); err != nil {
		logger.CtxWarn(ctx, "[Pipeline] Failed to save run %s: %v", run.ID, err)
	}
	p.publish(run)
}

func (p *Pipeline) publish(run *domain.PipelineRun) {
	cp := *run
	p.mu.Lock()
	p.last = &cp
	p.mu.Unlock()
}
