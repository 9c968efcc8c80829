package retrieval

import (
	"context"
	"fmt"
	"strings"

	"novel-orchestrator/internal/domain/entity"
)

// IndexCharacter 索引角色，返回写入的向量数
func (e *Engine) IndexCharacter(ctx context.Context, c *entity.Character) (int, error) {
	if c == nil || c.ID == "" {
		return 0, fmt.Errorf("character id is required")
	}
	return e.indexSingle(ctx, entity.VectorMetadata{
		NovelID:     c.NovelID,
		EntityType:  entity.ContentTypeCharacter,
		EntityID:    c.ID,
		ContentType: entity.ContentTypeCharacter,
		Content:     c.EmbeddingText(),
	})
}

// IndexLocation 索引地点
func (e *Engine) IndexLocation(ctx context.Context, l *entity.Location) (int, error) {
	if l == nil || l.ID == "" {
		return 0, fmt.Errorf("location id is required")
	}
	return e.indexSingle(ctx, entity.VectorMetadata{
		NovelID:     l.NovelID,
		EntityType:  entity.ContentTypeLocation,
		EntityID:    l.ID,
		ContentType: entity.ContentTypeLocation,
		Content:     l.EmbeddingText(),
	})
}

// IndexChapter 按分片索引章节正文，摘要额外写入一条向量
func (e *Engine) IndexChapter(ctx context.Context, ch *entity.Chapter) (int, error) {
	if ch == nil || ch.NovelID == "" || ch.Number <= 0 {
		return 0, fmt.Errorf("chapter key is required")
	}
	if !e.Enabled() {
		return 0, ErrVectorDisabled
	}

	chunks := Chunk(ch.Content, entity.ChunkingParagraph, e.chunkSize, e.chunkOverlap)
	metas := make([]entity.VectorMetadata, 0, len(chunks)+1)
	texts := make([]string, 0, len(chunks)+1)
	ids := make([]string, 0, len(chunks)+1)

	titlePrefix := ""
	if t := strings.TrimSpace(ch.Title); t != "" {
		titlePrefix = "Chapter " + fmt.Sprint(ch.Number) + ": " + t + "\n"
	}
	for i, chunk := range chunks {
		metas = append(metas, entity.VectorMetadata{
			NovelID:       ch.NovelID,
			EntityType:    entity.ContentTypeChapter,
			EntityID:      ch.Key(),
			ContentType:   entity.ContentTypeChapter,
			ChapterNumber: ch.Number,
			ChunkIndex:    i,
			Content:       chunk,
		})
		texts = append(texts, titlePrefix+chunk)
		ids = append(ids, VectorID(entity.ContentTypeChapter, ch.Key(), i))
	}
	if s := strings.TrimSpace(ch.Summary); s != "" {
		metas = append(metas, entity.VectorMetadata{
			NovelID:       ch.NovelID,
			EntityType:    entity.ContentTypeChapter,
			EntityID:      ch.Key(),
			ContentType:   entity.ContentTypeSummary,
			ChapterNumber: ch.Number,
			Content:       s,
		})
		texts = append(texts, titlePrefix+s)
		ids = append(ids, VectorID(entity.ContentTypeSummary, ch.Key(), -1))
	}
	n, err := e.index(ctx, ch.NovelID, ids, texts, metas)
	if err != nil {
		return 0, err
	}
	// 重新保存后分片变少或摘要被清空时，旧向量不能留在检索结果里
	if err := e.DeleteStale(ctx, e.Namespace(ch.NovelID), entity.ContentTypeChapter, ch.Key(), ids); err != nil {
		return n, err
	}
	return n, nil
}

// IndexDocument 索引上传文档的分片，contentType 为 document
func (e *Engine) IndexDocument(ctx context.Context, in DocumentInput) (int, error) {
	if in.NovelID == "" || in.DocumentID == "" {
		return 0, fmt.Errorf("novel id and document id are required")
	}
	if !e.Enabled() {
		return 0, ErrVectorDisabled
	}
	metas := make([]entity.VectorMetadata, 0, len(in.Chunks))
	texts := make([]string, 0, len(in.Chunks))
	ids := make([]string, 0, len(in.Chunks))
	for i, chunk := range in.Chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		metas = append(metas, entity.VectorMetadata{
			NovelID:     in.NovelID,
			EntityType:  entity.ContentTypeDocument,
			EntityID:    in.DocumentID,
			ContentType: entity.ContentTypeDocument,
			ChunkIndex:  i,
			Content:     chunk,
		})
		texts = append(texts, chunk)
		ids = append(ids, VectorID(entity.ContentTypeDocument, in.DocumentID, i))
	}
	return e.index(ctx, in.NovelID, ids, texts, metas)
}

func (e *Engine) indexSingle(ctx context.Context, meta entity.VectorMetadata) (int, error) {
	if !e.Enabled() {
		return 0, ErrVectorDisabled
	}
	id := VectorID(meta.EntityType, meta.EntityID, -1)
	return e.index(ctx, meta.NovelID, []string{id}, []string{meta.Content}, []entity.VectorMetadata{meta})
}

func (e *Engine) index(ctx context.Context, novelID string, ids, texts []string, metas []entity.VectorMetadata) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "retrieval.Index")
	defer span.End()

	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	records := make([]entity.VectorRecord, len(texts))
	for i := range texts {
		records[i] = entity.VectorRecord{ID: ids[i], Values: vecs[i], Metadata: metas[i]}
	}
	if err := e.Upsert(ctx, e.Namespace(novelID), records); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(records), nil
}
