package memory

import (
	"context"
	"errors"
	"fmt"

	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/pkg/logger"
)

// RegisterProcessors 在队列上注册索引与缓存回填处理器
func (s *Service) RegisterProcessors(concurrency map[string]int) {
	s.queue.RegisterProcessor(QueueIndex, JobTypeIndexEntity, s.processIndex, concurrencyFor(concurrency, QueueIndex, 2))
	s.queue.RegisterProcessor(QueueCache, JobTypeCacheRefresh, s.processCacheRefresh, concurrencyFor(concurrency, QueueCache, 4))
}

func concurrencyFor(m map[string]int, queue string, def int) int {
	if n := m[queue]; n > 0 {
		return n
	}
	return def
}

// OnJobFailure 终态失败回调，记录实体类型、ID 与所属小说，图数据库写入不回滚
func (s *Service) OnJobFailure(ctx context.Context, job *entity.Job, err error) {
	task, decodeErr := repository.DecodePayload[EntityTask](job)
	if decodeErr != nil {
		logger.Error(ctx, "background job failed permanently", err,
			"job_id", job.ID, "queue", job.Queue, "type", job.Type, "attempts", job.Attempts)
		return
	}
	entityID := task.EntityID
	if task.Kind == KindChapter {
		entityID = entity.ChapterKey(task.NovelID, task.ChapterNumber)
	}
	logger.Error(ctx, "background job failed permanently", err,
		"job_id", job.ID, "queue", job.Queue, "type", job.Type, "attempts", job.Attempts,
		"entity_type", task.Kind, "entity_id", entityID, "novel_id", task.NovelID)
}

func (s *Service) processIndex(ctx context.Context, job *entity.Job) error {
	task, err := repository.DecodePayload[EntityTask](job)
	if err != nil {
		return fmt.Errorf("decode index task: %w", err)
	}
	if s.vectors == nil || !s.vectors.Enabled() {
		logger.Debug(ctx, "vector index disabled, skipping index job", "kind", task.Kind, "novel_id", task.NovelID)
		return nil
	}

	var n int
	switch task.Kind {
	case KindCharacter:
		c, err := s.graph.GetCharacter(ctx, task.NovelID, task.EntityID)
		if err != nil {
			return skipMissing(ctx, task, err)
		}
		n, err = s.vectors.IndexCharacter(ctx, c)
		if err != nil {
			return err
		}
	case KindLocation:
		l, err := s.graph.GetLocation(ctx, task.NovelID, task.EntityID)
		if err != nil {
			return skipMissing(ctx, task, err)
		}
		n, err = s.vectors.IndexLocation(ctx, l)
		if err != nil {
			return err
		}
	case KindChapter:
		ch, err := s.graph.GetChapter(ctx, task.NovelID, task.ChapterNumber)
		if err != nil {
			return skipMissing(ctx, task, err)
		}
		n, err = s.vectors.IndexChapter(ctx, ch)
		if err != nil {
			return err
		}
	default:
		return nil
	}
	logger.Debug(ctx, "entity indexed", "kind", task.Kind, "novel_id", task.NovelID, "vectors", n)
	return nil
}

func (s *Service) processCacheRefresh(ctx context.Context, job *entity.Job) error {
	task, err := repository.DecodePayload[EntityTask](job)
	if err != nil {
		return fmt.Errorf("decode cache task: %w", err)
	}

	var value any
	ttl := s.ttl.Entity
	switch task.Kind {
	case KindNovel:
		value, err = s.graph.GetNovel(ctx, task.NovelID)
	case KindCharacter:
		value, err = s.graph.GetCharacter(ctx, task.NovelID, task.EntityID)
	case KindLocation:
		value, err = s.graph.GetLocation(ctx, task.NovelID, task.EntityID)
	case KindChapter:
		value, err = s.graph.GetChapter(ctx, task.NovelID, task.ChapterNumber)
		ttl = s.ttl.Chapter
	default:
		return nil
	}
	if err != nil {
		return skipMissing(ctx, task, err)
	}
	if !s.cache.Set(ctx, task.cacheKey(), value, ttl) {
		return fmt.Errorf("cache refresh failed for %s", task.cacheKey())
	}
	return nil
}

// skipMissing 实体已不存在时放弃任务，其余错误交给队列重试
func skipMissing(ctx context.Context, task *EntityTask, err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrNovelNotFound) {
		logger.Warn(ctx, "entity vanished before background job ran", "kind", task.Kind, "novel_id", task.NovelID)
		return nil
	}
	return err
}

var _ VectorIndex = (*retrieval.Engine)(nil)
