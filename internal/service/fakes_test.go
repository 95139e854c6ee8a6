package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/repository"
)

// memIndex is an in-memory cosine index keyed by namespace and article id.
type memIndex struct {
	mu       sync.Mutex
	points   map[string]map[string][]float32
	category map[string]string // article id -> primary category
	pingErr  error
	upsertFn func(records []repository.VectorRecord) error
	queryErr error
	calls    int
	upserts  int
}

func newMemIndex() *memIndex {
	return &memIndex{points: make(map[string]map[string][]float32), category: make(map[string]string)}
}

func (m *memIndex) put(namespace, id string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points[namespace] == nil {
		m.points[namespace] = make(map[string][]float32)
	}
	v := append([]float32(nil), vec...)
	normalizeL2(v)
	m.points[namespace][id] = v
}

func (m *memIndex) size(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points[namespace])
}

func (m *memIndex) setPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *memIndex) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.pingErr
}

func (m *memIndex) Upsert(_ context.Context, records []repository.VectorRecord, namespace string) error {
	m.mu.Lock()
	m.calls++
	m.upserts++
	fn := m.upsertFn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(records); err != nil {
			return err
		}
	}
	for _, r := range records {
		m.put(namespace, r.ArticleID, r.Vector)
		m.setCategory(r.ArticleID, r.Payload.Category)
	}
	return nil
}

func (m *memIndex) setCategory(id, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.category[id] = category
}

func (m *memIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]repository.VectorMatch, error) {
	return m.QueryCategory(ctx, vector, topK, namespace, "")
}

func (m *memIndex) QueryCategory(ctx context.Context, vector []float32, topK int, namespace, category string) ([]repository.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []repository.VectorMatch
	for id, v := range m.points[namespace] {
		if category != "" && m.category[id] != category {
			continue
		}
		var dot float32
		for i := range v {
			dot += v[i] * vector[i]
		}
		out = append(out, repository.VectorMatch{ArticleID: id, Score: dot})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ArticleID < out[j].ArticleID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memIndex) FetchVector(_ context.Context, articleID, namespace string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	v, ok := m.points[namespace][articleID]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", articleID, domain.ErrVectorNotFound)
	}
	return append([]float32(nil), v...), nil
}

func (m *memIndex) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memStore is an in-memory ArticleStore.
type memStore struct {
	mu        sync.Mutex
	articles  map[string]*domain.Article
	upsertErr error
	calls     int
}

func newMemStore(articles ...*domain.Article) *memStore {
	s := &memStore{articles: make(map[string]*domain.Article)}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return s
}

func (s *memStore) UpsertBatch(_ context.Context, articles []*domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, a := range articles {
		cp := *a
		s.articles[a.ID] = &cp
	}
	return nil
}

func (s *memStore) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make(map[string]*domain.Article, len(ids))
	for _, id := range ids {
		if a, ok := s.articles[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []*domain.Article
	for _, a := range s.articles {
		if a.Status == domain.ArticleStatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkIndexed(_ context.Context, ids []string, model string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, id := range ids {
		if a, ok := s.articles[id]; ok {
			a.Status = domain.ArticleStatusIndexed
			a.EmbeddingModel = model
			t := at
			a.IndexedAt = &t
		}
	}
	return nil
}

func (s *memStore) get(id string) *domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles[id]
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.articles)
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (m *memIndex) Count(_ context.Context, namespace string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.queryErr != nil {
		return 0, m.queryErr
	}
	return uint64(len(m.points[namespace])), nil
}

func (s *memStore) CountByStatus(_ context.Context, status domain.ArticleStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var n int64
	for _, a := range s.articles {
		if a.Status == status {
			n++
		}
	}
	return n, nil
}
