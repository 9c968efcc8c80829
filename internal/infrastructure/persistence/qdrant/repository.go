// Package qdrant 提供基于 Qdrant 的向量存储实现
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("qdrant")

const (
	backendName      = "qdrant"
	defaultDimension = 1536
)

// payload 字段
const (
	keyVectorID      = "vector_id"
	keyNamespace     = "namespace"
	keyNovelID       = "novel_id"
	keyEntityType    = "entity_type"
	keyEntityID      = "entity_id"
	keyContentType   = "content_type"
	keyChapterNumber = "chapter_number"
	keyChunkIndex    = "chunk_index"
	keyContent       = "content"
)

// Repository Qdrant 向量存储，命名空间通过 payload 过滤隔离
type Repository struct {
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	dim         int
	conn        *grpc.ClientConn
}

var _ repository.VectorStore = (*Repository)(nil)

// NewRepository 创建 Qdrant 仓储
func NewRepository(cfg *config.QdrantConfig, dim int) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "novel_vectors"
	}
	if dim <= 0 {
		dim = defaultDimension
	}
	return &Repository{
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  collection,
		dim:         dim,
		conn:        conn,
	}, nil
}

// Close 关闭 gRPC 连接
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Backend 返回后端名称
func (r *Repository) Backend() string { return backendName }

// HealthCheck 健康检查
func (r *Repository) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.HealthCheck")
	defer span.End()

	if _, err := r.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 集合不存在时创建，并为过滤字段建立索引
func (r *Repository) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.EnsureCollection")
	defer span.End()

	if _, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection}); err == nil {
		return nil
	}

	_, err := r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating collection: %w", err)
	}

	for _, field := range []string{keyNamespace, keyNovelID, keyContentType} {
		if _, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("creating index on %s: %w", field, err)
		}
	}
	if _, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: r.collection,
		FieldName:      keyChapterNumber,
		FieldType:      pb.FieldType_FieldTypeInteger.Enum(),
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating index on %s: %w", keyChapterNumber, err)
	}
	return nil
}

// PointID 由命名空间和向量 ID 派生确定性的 UUID
func PointID(namespace, vectorID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+vectorID)).String()
}

// Upsert 写入或覆盖向量
func (r *Repository) Upsert(ctx context.Context, namespace string, records []entity.VectorRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "qdrant.Upsert",
		trace.WithAttributes(
			attribute.String("namespace", namespace),
			attribute.Int("count", len(records)),
		))
	defer span.End()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		metrics.VectorUpsertTotal.WithLabelValues(backendName, status).Add(float64(len(records)))
	}()

	points := make([]*pb.PointStruct, 0, len(records))
	for _, rec := range records {
		if r.dim > 0 && len(rec.Values) != r.dim {
			return fmt.Errorf("vector %s has dimension %d, want %d", rec.ID, len(rec.Values), r.dim)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(namespace, rec.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: rec.Values},
				},
			},
			Payload: recordPayload(namespace, rec),
		})
	}

	_, err = r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Query 在命名空间内检索
func (r *Repository) Query(ctx context.Context, q entity.VectorQuery) (matches []entity.VectorMatch, err error) {
	ctx, span := tracer.Start(ctx, "qdrant.Query",
		trace.WithAttributes(
			attribute.String("namespace", q.Namespace),
			attribute.Int("top_k", q.TopK),
		))
	defer span.End()
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		metrics.VectorSearchDuration.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
		metrics.VectorSearchTotal.WithLabelValues(backendName, status).Inc()
	}()

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.TopK),
		Filter:         BuildFilter(q.Namespace, q.Filter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	matches = make([]entity.VectorMatch, 0, len(resp.Result))
	for _, point := range resp.Result {
		matches = append(matches, scoredPointToMatch(point, q.IncludeMetadata))
	}
	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// DeleteNamespace 删除命名空间下的全部点
func (r *Repository) DeleteNamespace(ctx context.Context, namespace string) error {
	ctx, span := tracer.Start(ctx, "qdrant.DeleteNamespace",
		trace.WithAttributes(attribute.String("namespace", namespace)))
	defer span.End()

	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{keywordCondition(keyNamespace, namespace)}},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting namespace points: %w", err)
	}
	return nil
}

// DeleteStale 删除实体下 vector_id 不在 keep 中的点
func (r *Repository) DeleteStale(ctx context.Context, namespace, entityType, entityID string, keep []string) error {
	ctx, span := tracer.Start(ctx, "qdrant.DeleteStale",
		trace.WithAttributes(
			attribute.String("namespace", namespace),
			attribute.String("entity_id", entityID),
			attribute.Int("keep", len(keep)),
		))
	defer span.End()

	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: StaleFilter(namespace, entityType, entityID, keep)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting stale points: %w", err)
	}
	return nil
}

// StaleFilter 命名空间内属于该实体且 vector_id 不在 keep 中的点
func StaleFilter(namespace, entityType, entityID string, keep []string) *pb.Filter {
	filter := &pb.Filter{Must: []*pb.Condition{
		keywordCondition(keyNamespace, namespace),
		keywordCondition(keyEntityType, entityType),
		keywordCondition(keyEntityID, entityID),
	}}
	if len(keep) > 0 {
		filter.MustNot = []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   keyVectorID,
					Match: &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: keep}}},
				},
			},
		}}
	}
	return filter
}

// BuildFilter 构建命名空间与元数据过滤条件
func BuildFilter(namespace string, f entity.VectorFilter) *pb.Filter {
	filter := &pb.Filter{Must: []*pb.Condition{keywordCondition(keyNamespace, namespace)}}
	if f.NovelID != "" {
		filter.Must = append(filter.Must, keywordCondition(keyNovelID, f.NovelID))
	}
	if f.ChapterNumber != nil {
		filter.Must = append(filter.Must, integerCondition(keyChapterNumber, int64(*f.ChapterNumber)))
	}
	if f.ExcludeChapter != nil {
		filter.MustNot = append(filter.MustNot, integerCondition(keyChapterNumber, int64(*f.ExcludeChapter)))
	}
	if len(f.ContentTypes) > 0 {
		filter.Must = append(filter.Must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: keyContentType,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: f.ContentTypes},
						},
					},
				},
			},
		})
	}
	return filter
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func integerCondition(key string, value int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Integer{Integer: value}},
			},
		},
	}
}

func recordPayload(namespace string, rec entity.VectorRecord) map[string]*pb.Value {
	m := rec.Metadata
	return map[string]*pb.Value{
		keyVectorID:      {Kind: &pb.Value_StringValue{StringValue: rec.ID}},
		keyNamespace:     {Kind: &pb.Value_StringValue{StringValue: namespace}},
		keyNovelID:       {Kind: &pb.Value_StringValue{StringValue: m.NovelID}},
		keyEntityType:    {Kind: &pb.Value_StringValue{StringValue: m.EntityType}},
		keyEntityID:      {Kind: &pb.Value_StringValue{StringValue: m.EntityID}},
		keyContentType:   {Kind: &pb.Value_StringValue{StringValue: m.ContentType}},
		keyChapterNumber: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(m.ChapterNumber)}},
		keyChunkIndex:    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(m.ChunkIndex)}},
		keyContent:       {Kind: &pb.Value_StringValue{StringValue: m.Content}},
	}
}

func scoredPointToMatch(point *pb.ScoredPoint, includeMetadata bool) entity.VectorMatch {
	payload := point.Payload
	match := entity.VectorMatch{
		ID:      getStringValue(payload, keyVectorID),
		Score:   point.Score,
		Content: getStringValue(payload, keyContent),
	}
	if match.ID == "" {
		match.ID = point.Id.GetUuid()
	}
	if includeMetadata {
		match.Metadata = entity.VectorMetadata{
			NovelID:       getStringValue(payload, keyNovelID),
			EntityType:    getStringValue(payload, keyEntityType),
			EntityID:      getStringValue(payload, keyEntityID),
			ContentType:   getStringValue(payload, keyContentType),
			ChapterNumber: int(getIntValue(payload, keyChapterNumber)),
			ChunkIndex:    int(getIntValue(payload, keyChunkIndex)),
		}.AsMap()
	}
	return match
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}
