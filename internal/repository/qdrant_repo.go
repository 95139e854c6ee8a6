package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultVectorDimension = 1024
	namespaceField         = "namespace"
	categoryField          = "category"
)

// pointNamespace seeds the UUIDv5 point ids derived from (namespace, article id).
var pointNamespace = uuid.MustParse("6f1c3b52-8d0e-4c8a-9d5e-2b7f4a1e9c30")

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
	Retry           retry.Policy
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ArticlePayload is the subset of an article stored next to its vector.
type ArticlePayload struct {
	ArticleID string
	Namespace string
	Title     string
	Link      string
	Source    string
	Category  string
	Published string
	Tags      []string
}

// VectorRecord is one article vector to upsert.
type VectorRecord struct {
	ArticleID string
	Vector    []float32
	Payload   ArticlePayload
}

// VectorMatch is one nearest-neighbour hit.
type VectorMatch struct {
	ArticleID string
	Score     float32
}

// QdrantRepository is the vector index adapter. Every call goes through the
// shared retry policy; transient gRPC failures surface as
// domain.ErrIndexUnavailable once the budget is spent.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	healthClient    pb.QdrantClient
	collectionName  string
	vectorDimension int
	policy          retry.Policy
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return newQdrantRepositoryWithConn(conn, cfg), nil
}

func newQdrantRepositoryWithConn(conn *grpc.ClientConn, cfg *QdrantConnectionConfig) *QdrantRepository {
	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}
	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		healthClient:    pb.NewQdrantClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
		policy:          cfg.Retry,
	}
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// PointID derives the Qdrant point id for an article in a namespace.
func PointID(namespace, articleID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+articleID)).String()
}

// do runs one index call under the retry policy and maps gRPC failures
// onto the domain error taxonomy.
func (r *QdrantRepository) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			logger.CtxWarn(ctx, "[Qdrant] %s transient failure: %v", op, err)
			return err
		case codes.Unauthenticated, codes.PermissionDenied:
			return retry.Permanent(fmt.Errorf("qdrant %s: %w: %v", op, domain.ErrProviderUnauthorized, err))
		default:
			return retry.Permanent(fmt.Errorf("qdrant %s: %w", op, err))
		}
	})
	if err == nil {
		return nil
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("qdrant %s after %d attempts: %w: %v", op, exhausted.Attempts, domain.ErrIndexUnavailable, exhausted.Last)
	}
	return err
}

// Ping checks that the server answers and the collection exists.
func (r *QdrantRepository) Ping(ctx context.Context) error {
	return r.do(ctx, "ping", func(ctx context.Context) error {
		if _, err := r.healthClient.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
			return err
		}
		resp, err := r.collectClient.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collectionName})
		if err != nil {
			return err
		}
		if !resp.GetResult().GetExists() {
			return retry.Permanent(fmt.Errorf("collection %s does not exist", r.collectionName))
		}
		return nil
	})
}

// EnsureCollection creates the cosine collection and the namespace and
// category payload indexes if they don't exist, and checks the vector size if
// they do.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("%w: collection %s has vector size %d, expected %d",
				domain.ErrEmbeddingMismatch, r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	fieldType := pb.FieldType_FieldTypeKeyword
	for _, field := range []string{namespaceField, categoryField} {
		_, err = r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collectionName,
			Wait:           optionalBool(true),
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", field, err)
		}
	}

	logger.Info("[Qdrant] Created collection %s (dim=%d)", r.collectionName, r.vectorDimension)
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func optionalBool(v bool) *bool {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	for _, vectorParams := range vectors.GetParamsMap().GetMap() {
		if size := vectorParams.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

// Upsert writes all records in one request and waits for the write to apply.
// Point ids are derived from (namespace, article id), so repeating the call is a no-op.
func (r *QdrantRepository) Upsert(ctx context.Context, records []VectorRecord, namespace string) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != r.vectorDimension {
			return fmt.Errorf("%w: vector for %s has %d dims, collection expects %d",
				domain.ErrEmbeddingMismatch, rec.ArticleID, len(rec.Vector), r.vectorDimension)
		}
		payload := rec.Payload
		payload.ArticleID = rec.ArticleID
		payload.Namespace = namespace

		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(namespace, rec.ArticleID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: rec.Vector},
				},
			},
			Payload: payloadToValues(&payload),
		})
	}

	return r.do(ctx, "upsert", func(ctx context.Context) error {
		_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: r.collectionName,
			Wait:           optionalBool(true),
			Points:         points,
		})
		return err
	})
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func payloadToValues(p *ArticlePayload) map[string]*pb.Value {
	return map[string]*pb.Value{
		"article_id":   stringValue(p.ArticleID),
		namespaceField: stringValue(p.Namespace),
		"title":        stringValue(p.Title),
		"link":         stringValue(p.Link),
		"source":       stringValue(p.Source),
		categoryField:  stringValue(p.Category),
		"published":    stringValue(p.Published),
		"tags":         tagsToValue(p.Tags),
	}
}

func tagsToValue(tags []string) *pb.Value {
	values := make([]*pb.Value, len(tags))
	for i, tag := range tags {
		values[i] = stringValue(tag)
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: values},
		},
	}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// indexFilter restricts a search to namespace and, when set, to category.
func indexFilter(namespace, category string) *pb.Filter {
	must := []*pb.Condition{keywordCondition(namespaceField, namespace)}
	if category != "" {
		must = append(must, keywordCondition(categoryField, category))
	}
	return &pb.Filter{Must: must}
}

// Query returns up to topK nearest neighbours within namespace, best first.
func (r *QdrantRepository) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]VectorMatch, error) {
	return r.search(ctx, vector, topK, indexFilter(namespace, ""))
}

// QueryCategory is Query restricted to articles whose primary category is
// category. An empty category searches the whole namespace.
func (r *QdrantRepository) QueryCategory(ctx context.Context, vector []float32, topK int, namespace, category string) ([]VectorMatch, error) {
	return r.search(ctx, vector, topK, indexFilter(namespace, category))
}

func (r *QdrantRepository) search(ctx context.Context, vector []float32, topK int, filter *pb.Filter) ([]VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	var resp *pb.SearchResponse
	err := r.do(ctx, "query", func(ctx context.Context) error {
		var err error
		resp, err = r.pointsClient.Search(ctx, &pb.SearchPoints{
			CollectionName: r.collectionName,
			Vector:         vector,
			Limit:          uint64(topK),
			Filter:         filter,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Include{
					Include: &pb.PayloadIncludeSelector{Fields: []string{"article_id"}},
				},
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		articleID := scored.GetPayload()["article_id"].GetStringValue()
		if articleID == "" {
			continue
		}
		matches = append(matches, VectorMatch{ArticleID: articleID, Score: scored.GetScore()})
	}
	return matches, nil
}

// FetchVector returns the stored vector for an article.
// Returns domain.ErrVectorNotFound when the namespace has no point for it.
func (r *QdrantRepository) FetchVector(ctx context.Context, articleID, namespace string) ([]float32, error) {
	var resp *pb.GetResponse
	err := r.do(ctx, "fetch", func(ctx context.Context) error {
		var err error
		resp, err = r.pointsClient.Get(ctx, &pb.GetPoints{
			CollectionName: r.collectionName,
			Ids: []*pb.PointId{
				{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(namespace, articleID)}},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, point := range resp.GetResult() {
		out := point.GetVectors().GetVector()
		if data := out.GetDense().GetData(); len(data) > 0 {
			return data, nil
		}
		if data := out.GetData(); len(data) > 0 { //nolint:staticcheck
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrVectorNotFound, articleID)
}

// Count returns the exact number of points in namespace.
func (r *QdrantRepository) Count(ctx context.Context, namespace string) (uint64, error) {
	var resp *pb.CountResponse
	err := r.do(ctx, "count", func(ctx context.Context) error {
		var err error
		resp, err = r.pointsClient.Count(ctx, &pb.CountPoints{
			CollectionName: r.collectionName,
			Filter:         indexFilter(namespace, ""),
			Exact:          optionalBool(true),
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return resp.GetResult().GetCount(), nil
}
