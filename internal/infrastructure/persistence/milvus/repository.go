package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/pkg/metrics"
)

const backendName = "milvus"

// Repository Milvus 向量存储，实现 repository.VectorStore
type Repository struct {
	client *Client
	dim    int
}

// NewRepository 创建向量仓储
func NewRepository(client *Client, dim int) *Repository {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Repository{client: client, dim: dim}
}

var _ repository.VectorStore = (*Repository)(nil)

// Backend 返回后端名称
func (r *Repository) Backend() string { return backendName }

// HealthCheck 健康检查
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

// EnsureCollection 确保集合与索引可用（不存在则创建），不做破坏性操作
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection")
	defer span.End()

	exists, err := r.client.HasCollection(ctx, CollectionNovelVectors)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		schema := NovelVectorsSchema(r.dim)
		schema.CollectionName = r.client.CollectionName(CollectionNovelVectors)
		if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := r.createIndex(ctx); err != nil {
			return err
		}
	}
	return r.client.LoadCollection(ctx, CollectionNovelVectors)
}

// createIndex 创建 HNSW 索引
func (r *Repository) createIndex(ctx context.Context) error {
	idx, err := entity.NewIndexHNSW(entity.COSINE, r.client.cfg.HNSWM, r.client.cfg.HNSWEfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	collName := r.client.CollectionName(CollectionNovelVectors)
	if err := r.client.milvus.CreateIndex(ctx, collName, fieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// ensurePartition 确保命名空间对应的分区存在
func (r *Repository) ensurePartition(ctx context.Context, collName, partition string) error {
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if has {
		return nil
	}
	if err := r.client.milvus.CreatePartition(ctx, collName, partition); err != nil {
		return fmt.Errorf("failed to create partition: %w", err)
	}
	return nil
}

// Upsert 写入或覆盖向量，ID 相同则替换
func (r *Repository) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) (err error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(records) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
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

	collName := r.client.CollectionName(CollectionNovelVectors)
	partition := PartitionName(namespace)
	if err := r.ensurePartition(ctx, collName, partition); err != nil {
		return err
	}

	n := len(records)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	namespaces := make([]string, n)
	novelIDs := make([]string, n)
	entityTypes := make([]string, n)
	entityIDs := make([]string, n)
	contentTypes := make([]string, n)
	chapterNumbers := make([]int64, n)
	chunkIndexes := make([]int64, n)
	contents := make([]string, n)

	for i, rec := range records {
		if len(rec.Values) != r.dim {
			return fmt.Errorf("vector %s has dimension %d, want %d", rec.ID, len(rec.Values), r.dim)
		}
		ids[i] = rec.ID
		vectors[i] = rec.Values
		namespaces[i] = namespace
		novelIDs[i] = rec.Metadata.NovelID
		entityTypes[i] = rec.Metadata.EntityType
		entityIDs[i] = rec.Metadata.EntityID
		contentTypes[i] = rec.Metadata.ContentType
		chapterNumbers[i] = int64(rec.Metadata.ChapterNumber)
		chunkIndexes[i] = int64(rec.Metadata.ChunkIndex)
		contents[i] = truncateBytes(rec.Metadata.Content, maxContentLength)
	}

	_, err = r.client.milvus.Upsert(ctx, collName, partition,
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dim, vectors),
		entity.NewColumnVarChar(fieldNamespace, namespaces),
		entity.NewColumnVarChar(fieldNovelID, novelIDs),
		entity.NewColumnVarChar(fieldEntityType, entityTypes),
		entity.NewColumnVarChar(fieldEntityID, entityIDs),
		entity.NewColumnVarChar(fieldContentType, contentTypes),
		entity.NewColumnInt64(fieldChapterNumber, chapterNumbers),
		entity.NewColumnInt64(fieldChunkIndex, chunkIndexes),
		entity.NewColumnVarChar(fieldContent, contents),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// Query 在命名空间内检索最相似的向量
func (r *Repository) Query(ctx context.Context, q domain.VectorQuery) (matches []domain.VectorMatch, err error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Query",
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

	collName := r.client.CollectionName(CollectionNovelVectors)
	partition := PartitionName(q.Namespace)

	// 新小说尚无分区时直接返回空结果
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return []domain.VectorMatch{}, nil
	}

	ef := r.client.cfg.SearchEf
	if ef < q.TopK {
		ef = q.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partition},
		BuildFilter(q.Namespace, q.Filter),
		outputFields,
		[]entity.Vector{entity.FloatVector(q.Vector)},
		fieldVector,
		entity.COSINE,
		q.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches = make([]domain.VectorMatch, 0, q.TopK)
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			m := domain.VectorMatch{Score: result.Scores[i]}
			meta := domain.VectorMetadata{}
			if col, ok := result.Fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
				m.ID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldNovelID).(*entity.ColumnVarChar); ok {
				meta.NovelID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldEntityType).(*entity.ColumnVarChar); ok {
				meta.EntityType = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldEntityID).(*entity.ColumnVarChar); ok {
				meta.EntityID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldContentType).(*entity.ColumnVarChar); ok {
				meta.ContentType = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldChapterNumber).(*entity.ColumnInt64); ok {
				meta.ChapterNumber = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn(fieldChunkIndex).(*entity.ColumnInt64); ok {
				meta.ChunkIndex = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn(fieldContent).(*entity.ColumnVarChar); ok {
				m.Content = col.Data()[i]
			}
			if q.IncludeMetadata {
				m.Metadata = meta.AsMap()
			}
			matches = append(matches, m)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// DeleteNamespace 删除命名空间（分区）下的全部向量
func (r *Repository) DeleteNamespace(ctx context.Context, namespace string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteNamespace",
		trace.WithAttributes(attribute.String("namespace", namespace)))
	defer span.End()

	collName := r.client.CollectionName(CollectionNovelVectors)
	partition := PartitionName(namespace)

	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}
	if err := r.client.milvus.ReleasePartitions(ctx, collName, []string{partition}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release partition: %w", err)
	}
	if err := r.client.milvus.DropPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}

// DeleteStale 删除实体在该分区内 ID 不在 keep 中的向量
func (r *Repository) DeleteStale(ctx context.Context, namespace, entityType, entityID string, keep []string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteStale",
		trace.WithAttributes(
			attribute.String("namespace", namespace),
			attribute.String("entity_id", entityID),
			attribute.Int("keep", len(keep)),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionNovelVectors)
	partition := PartitionName(namespace)
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}
	if err := r.client.milvus.Delete(ctx, collName, partition, StaleFilter(namespace, entityType, entityID, keep)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete stale vectors: %w", err)
	}
	return nil
}

// StaleFilter 实体下 ID 不在 keep 中的向量
func StaleFilter(namespace, entityType, entityID string, keep []string) string {
	expr := fmt.Sprintf(`%s == %s && %s == %s && %s == %s`,
		fieldNamespace, strconv.Quote(namespace),
		fieldEntityType, strconv.Quote(entityType),
		fieldEntityID, strconv.Quote(entityID))
	if len(keep) == 0 {
		return expr
	}
	quoted := make([]string, len(keep))
	for i, id := range keep {
		quoted[i] = strconv.Quote(id)
	}
	return expr + fmt.Sprintf(` && %s not in [%s]`, fieldID, strings.Join(quoted, ", "))
}

// BuildFilter 构建布尔过滤表达式
func BuildFilter(namespace string, f domain.VectorFilter) string {
	parts := []string{fmt.Sprintf(`%s == %s`, fieldNamespace, strconv.Quote(namespace))}
	if f.NovelID != "" {
		parts = append(parts, fmt.Sprintf(`%s == %s`, fieldNovelID, strconv.Quote(f.NovelID)))
	}
	if f.ChapterNumber != nil {
		parts = append(parts, fmt.Sprintf(`%s == %d`, fieldChapterNumber, *f.ChapterNumber))
	}
	if f.ExcludeChapter != nil {
		parts = append(parts, fmt.Sprintf(`%s != %d`, fieldChapterNumber, *f.ExcludeChapter))
	}
	// content_type 为单值字段，使用 OR 组合
	var types []string
	for _, ct := range f.ContentTypes {
		ct = strings.TrimSpace(ct)
		if ct == "" {
			continue
		}
		types = append(types, fmt.Sprintf(`%s == %s`, fieldContentType, strconv.Quote(ct)))
	}
	if len(types) > 0 {
		parts = append(parts, "("+strings.Join(types, " || ")+")")
	}
	return strings.Join(parts, " && ")
}

// truncateBytes 按字节截断并保持 UTF-8 完整
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
