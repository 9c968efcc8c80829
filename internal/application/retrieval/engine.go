// Package retrieval 提供文本切分、向量索引与语义检索
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/internal/infrastructure/embedding"
	"novel-orchestrator/pkg/logger"
)

var tracer = otel.Tracer("retrieval")

const defaultOpTimeout = 20 * time.Second

// Engine 向量检索引擎，向量库与 Embedder 任一缺失时降级为禁用
type Engine struct {
	embedder embedding.Embedder
	store    repository.VectorStore

	namespacePrefix string
	chunkSize       int
	chunkOverlap    int
	previewLength   int
	opTimeout       time.Duration
}

// NewEngine 创建检索引擎，embedder 与 store 均可为 nil
func NewEngine(cfg *config.VectorConfig, embedder embedding.Embedder, store repository.VectorStore) *Engine {
	e := &Engine{
		embedder:        embedder,
		store:           store,
		namespacePrefix: cfg.NamespacePrefix,
		chunkSize:       cfg.ChunkSize,
		chunkOverlap:    cfg.ChunkOverlap,
		previewLength:   cfg.PreviewLength,
		opTimeout:       cfg.OpTimeout,
	}
	if e.namespacePrefix == "" {
		e.namespacePrefix = "novel-"
	}
	if e.chunkSize <= 0 {
		e.chunkSize = 1000
	}
	if e.opTimeout <= 0 {
		e.opTimeout = defaultOpTimeout
	}
	return e
}

// Enabled 向量能力是否可用
func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.store != nil
}

// Backend 当前向量后端名称
func (e *Engine) Backend() string {
	if e == nil || e.store == nil {
		return "none"
	}
	return e.store.Backend()
}

// Namespace 小说对应的向量命名空间
func (e *Engine) Namespace(novelID string) string {
	return e.namespacePrefix + novelID
}

// Embed 向量化单段文本，失败或未配置时返回 nil
func (e *Engine) Embed(ctx context.Context, text string) []float32 {
	if e == nil || e.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		logger.Warn(ctx, "embedding failed, continuing without vector", "error", err)
		return nil
	}
	return vecs[0]
}

// EmbedBatch 批量向量化，返回数量与输入一致
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e == nil || e.embedder == nil {
		return nil, ErrVectorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(texts))
	}
	return vecs, nil
}

// Upsert 写入向量
func (e *Engine) Upsert(ctx context.Context, namespace string, records []entity.VectorRecord) error {
	if e == nil || e.store == nil {
		return ErrVectorDisabled
	}
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.store.Upsert(ctx, namespace, records)
}

// DeleteStale 清理实体不再使用的向量
func (e *Engine) DeleteStale(ctx context.Context, namespace, entityType, entityID string, keep []string) error {
	if e == nil || e.store == nil {
		return ErrVectorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.store.DeleteStale(ctx, namespace, entityType, entityID, keep)
}

// Query 直接按向量检索
func (e *Engine) Query(ctx context.Context, q entity.VectorQuery) ([]entity.VectorMatch, error) {
	if e == nil || e.store == nil {
		return nil, ErrVectorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.store.Query(ctx, q)
}

// SemanticSearch 在小说命名空间内语义检索；未配置、无结果或后端失败时返回空切片
func (e *Engine) SemanticSearch(ctx context.Context, novelID, query string, opts SearchOptions) []entity.VectorMatch {
	empty := []entity.VectorMatch{}
	if !e.Enabled() || strings.TrimSpace(query) == "" {
		return empty
	}

	ctx, span := tracer.Start(ctx, "retrieval.SemanticSearch",
		trace.WithAttributes(
			attribute.String("novel_id", novelID),
			attribute.String("vector.backend", e.store.Backend()),
		))
	defer span.End()

	vec := e.Embed(ctx, query)
	if vec == nil {
		return empty
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	matches, err := e.Query(ctx, entity.VectorQuery{
		Vector:    vec,
		TopK:      topK,
		Namespace: e.Namespace(novelID),
		Filter: entity.VectorFilter{
			NovelID:        novelID,
			ChapterNumber:  opts.ChapterNumber,
			ExcludeChapter: opts.ExcludeChapter,
			ContentTypes:   opts.ContentTypes,
		},
		IncludeMetadata: true,
	})
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "semantic search failed, returning no matches",
			"novel_id", novelID, "backend", e.store.Backend(), "error", err)
		return empty
	}

	for i := range matches {
		matches[i].Content = preview(matches[i].Content, e.previewLength)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	if matches == nil {
		return empty
	}
	return matches
}

// DeleteNovel 删除小说命名空间下全部向量
func (e *Engine) DeleteNovel(ctx context.Context, novelID string) error {
	if e == nil || e.store == nil {
		return ErrVectorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.store.DeleteNamespace(ctx, e.Namespace(novelID))
}
