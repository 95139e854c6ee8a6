package repository

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakePoints is an in-memory Points service keyed by point uuid.
type fakePoints struct {
	pb.UnimplementedPointsServer

	mu          sync.Mutex
	points      map[string]*pb.PointStruct
	failures    int // remaining calls that fail with failCode
	failCode    codes.Code
	upsertCalls int
}

func (f *fakePoints) fail() error {
	if f.failures > 0 {
		f.failures--
		return status.Error(f.failCode, "injected")
	}
	return nil
}

func (f *fakePoints) Upsert(_ context.Context, req *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	for _, p := range req.GetPoints() {
		f.points[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Get(_ context.Context, req *pb.GetPoints) (*pb.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	resp := &pb.GetResponse{}
	for _, id := range req.GetIds() {
		p, ok := f.points[id.GetUuid()]
		if !ok {
			continue
		}
		resp.Result = append(resp.Result, &pb.RetrievedPoint{
			Id:      p.GetId(),
			Payload: p.GetPayload(),
			Vectors: &pb.VectorsOutput{
				VectorsOptions: &pb.VectorsOutput_Vector{
					Vector: &pb.VectorOutput{Data: p.GetVectors().GetVector().GetData()},
				},
			},
		})
	}
	return resp, nil
}

func (f *fakePoints) Search(_ context.Context, req *pb.SearchPoints) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	resp := &pb.SearchResponse{}
	for _, p := range f.points {
		if !matchesFilter(p, req.GetFilter()) {
			continue
		}
		resp.Result = append(resp.Result, &pb.ScoredPoint{
			Id:      p.GetId(),
			Payload: p.GetPayload(),
			Score:   dot(req.GetVector(), p.GetVectors().GetVector().GetData()),
		})
	}
	return resp, nil
}

func (f *fakePoints) Count(_ context.Context, req *pb.CountPoints) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, p := range f.points {
		if matchesFilter(p, req.GetFilter()) {
			n++
		}
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: n}}, nil
}

// matchesFilter applies keyword "must" conditions to a point's payload.
func matchesFilter(p *pb.PointStruct, filter *pb.Filter) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if p.GetPayload()[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func (f *fakePoints) stats() (stored, upserts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points), f.upsertCalls
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		if i < len(b) {
			s += a[i] * b[i]
		}
	}
	return s
}

func newTestQdrant(t *testing.T, dim int) (*QdrantRepository, *fakePoints) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakePoints{points: map[string]*pb.PointStruct{}}
	pb.RegisterPointsServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	repo := newQdrantRepositoryWithConn(conn, &QdrantConnectionConfig{
		Collection:      "test",
		VectorDimension: dim,
		Retry:           retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, CallTimeout: time.Second},
	})
	return repo, fake
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("default", "bbc_123")
	if a != PointID("default", "bbc_123") {
		t.Fatal("point id must be stable")
	}
	if a == PointID("other", "bbc_123") {
		t.Fatal("namespaces must not collide")
	}
}

func TestQdrantUpsertFetchQuery(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestQdrant(t, 2)

	records := []VectorRecord{
		{ArticleID: "a", Vector: []float32{1, 0}, Payload: ArticlePayload{Title: "A", Tags: []string{"x"}}},
		{ArticleID: "b", Vector: []float32{0.8, 0.6}, Payload: ArticlePayload{Title: "B"}},
	}
	if err := repo.Upsert(ctx, records, "default"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	// same ids again: replaced, not duplicated
	if err := repo.Upsert(ctx, records, "default"); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, records[:1], "other"); err != nil {
		t.Fatalf("Upsert(other) error = %v", err)
	}

	n, err := repo.Count(ctx, "default")
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2", n, err)
	}
	if stored, _ := fake.stats(); stored != 3 {
		t.Fatalf("stored points = %d, want 3", stored)
	}

	vec, err := repo.FetchVector(ctx, "b", "default")
	if err != nil {
		t.Fatalf("FetchVector() error = %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.6 {
		t.Fatalf("FetchVector() = %v", vec)
	}

	matches, err := repo.Query(ctx, []float32{1, 0}, 5, "default")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query() = %v, want 2 matches in namespace", matches)
	}
}

func TestQdrantQueryCategory(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestQdrant(t, 2)

	records := []VectorRecord{
		{ArticleID: "tech-1", Vector: []float32{1, 0}, Payload: ArticlePayload{Category: "technology"}},
		{ArticleID: "tech-2", Vector: []float32{0.6, 0.8}, Payload: ArticlePayload{Category: "technology"}},
		{ArticleID: "biz-1", Vector: []float32{0.8, 0.6}, Payload: ArticlePayload{Category: "business"}},
	}
	if err := repo.Upsert(ctx, records, "default"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		category string
		want     int
	}{
		{category: "", want: 3},
		{category: "technology", want: 2},
		{category: "business", want: 1},
		{category: "sports", want: 0},
	}
	for _, tt := range tests {
		t.Run("category="+tt.category, func(t *testing.T) {
			matches, err := repo.QueryCategory(ctx, []float32{1, 0}, 10, "default", tt.category)
			if err != nil {
				t.Fatalf("QueryCategory() error = %v", err)
			}
			if len(matches) != tt.want {
				t.Fatalf("QueryCategory() = %v, want %d matches", matches, tt.want)
			}
		})
	}
}

func TestQdrantFetchVectorNotFound(t *testing.T) {
	repo, _ := newTestQdrant(t, 2)

	_, err := repo.FetchVector(context.Background(), "nope", "default")
	if !errors.Is(err, domain.ErrVectorNotFound) {
		t.Fatalf("err = %v, want ErrVectorNotFound", err)
	}
}

func TestQdrantErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		code      codes.Code
		wantErr   error
		wantCalls int
	}{
		{name: "recovers from transient", failures: 2, code: codes.Unavailable, wantCalls: 3},
		{name: "exhausted", failures: 10, code: codes.Unavailable, wantErr: domain.ErrIndexUnavailable, wantCalls: 3},
		{name: "deadline is transient", failures: 10, code: codes.DeadlineExceeded, wantErr: domain.ErrIndexUnavailable, wantCalls: 3},
		{name: "unauthenticated not retried", failures: 10, code: codes.Unauthenticated, wantErr: domain.ErrProviderUnauthorized, wantCalls: 1},
		{name: "invalid argument not retried", failures: 10, code: codes.InvalidArgument, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, fake := newTestQdrant(t, 2)
			fake.failures = tt.failures
			fake.failCode = tt.code

			err := repo.Upsert(context.Background(), []VectorRecord{{ArticleID: "a", Vector: []float32{1, 0}}}, "default")

			if _, calls := fake.stats(); calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.failures > tt.wantCalls:
				if err == nil || errors.Is(err, domain.ErrIndexUnavailable) {
					t.Fatalf("err = %v, want plain permanent error", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected err = %v", err)
				}
			}
		})
	}
}

func TestQdrantUpsertRejectsWrongDimension(t *testing.T) {
	repo, fake := newTestQdrant(t, 3)

	err := repo.Upsert(context.Background(), []VectorRecord{{ArticleID: "a", Vector: []float32{1, 0}}}, "default")
	if !errors.Is(err, domain.ErrEmbeddingMismatch) {
		t.Fatalf("err = %v, want ErrEmbeddingMismatch", err)
	}
	if _, calls := fake.stats(); calls != 0 {
		t.Fatalf("no request expected, got %d", calls)
	}
}
