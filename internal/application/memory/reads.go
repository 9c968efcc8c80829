package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
)

// sharedReadTimeout 合并回源的上限，回源不随任何单个调用方取消
const sharedReadTimeout = 10 * time.Second

// cachedRead 先读缓存，未命中时经 singleflight 合并并发回源，成功后回填。
// 合并结果以 JSON 字节共享，每个调用方各自解码出独立副本。
func cachedRead[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, error) {
	var v T
	if s.cache.GetJSON(ctx, key, &v) {
		return &v, nil
	}
	ch := s.sf.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(logger.Detach(ctx), sharedReadTimeout)
		defer cancel()
		item, err := load(lctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		s.cache.Set(lctx, key, json.RawMessage(raw), ttl)
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		var out T
		if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return &out, nil
	}
}

// GetNovel 读取小说
func (s *Service) GetNovel(ctx context.Context, novelID string) (*entity.Novel, error) {
	n, err := cachedRead(ctx, s, novelKey(novelID), s.ttl.Entity, func(ctx context.Context) (*entity.Novel, error) {
		return s.graph.GetNovel(ctx, novelID)
	})
	if err != nil {
		return nil, notFound(err, apperrors.ErrNovelNotFound, "failed to read novel")
	}
	return n, nil
}

// GetCharacter 读取角色
func (s *Service) GetCharacter(ctx context.Context, novelID, characterID string) (*entity.Character, error) {
	c, err := cachedRead(ctx, s, characterKey(novelID, characterID), s.ttl.Entity, func(ctx context.Context) (*entity.Character, error) {
		return s.graph.GetCharacter(ctx, novelID, characterID)
	})
	if err != nil {
		return nil, notFound(err, apperrors.ErrCharacterNotFound, "failed to read character")
	}
	return c, nil
}

// GetLocation 读取地点
func (s *Service) GetLocation(ctx context.Context, novelID, locationID string) (*entity.Location, error) {
	l, err := cachedRead(ctx, s, locationKey(novelID, locationID), s.ttl.Entity, func(ctx context.Context) (*entity.Location, error) {
		return s.graph.GetLocation(ctx, novelID, locationID)
	})
	if err != nil {
		return nil, notFound(err, apperrors.ErrLocationNotFound, "failed to read location")
	}
	return l, nil
}

// GetChapter 读取章节
func (s *Service) GetChapter(ctx context.Context, novelID string, number int) (*entity.Chapter, error) {
	ch, err := cachedRead(ctx, s, chapterKey(novelID, number), s.ttl.Chapter, func(ctx context.Context) (*entity.Chapter, error) {
		return s.graph.GetChapter(ctx, novelID, number)
	})
	if err != nil {
		return nil, notFound(err, apperrors.ErrChapterNotFound, "failed to read chapter")
	}
	return ch, nil
}

// GetWorldState 读取世界状态，不存在时返回空状态
func (s *Service) GetWorldState(ctx context.Context, novelID string) (*entity.WorldState, error) {
	ws, err := cachedRead(ctx, s, worldStateKey(novelID), s.ttl.WorldState, func(ctx context.Context) (*entity.WorldState, error) {
		ws, err := s.graph.GetWorldState(ctx, novelID)
		if errors.Is(err, repository.ErrNotFound) {
			return entity.NewWorldState(novelID), nil
		}
		return ws, err
	})
	if err != nil {
		return nil, graphError(err, "failed to read world state")
	}
	if ws.State == nil {
		ws.State = map[string]any{}
	}
	return ws, nil
}

// SearchEntities 按名称/描述子串搜索实体
func (s *Service) SearchEntities(ctx context.Context, novelID, text string, types []string) ([]entity.EntityMatch, error) {
	if text == "" {
		return nil, apperrors.Validation("search text is required")
	}
	matches, err := s.graph.SearchEntities(ctx, novelID, text, types)
	if err != nil {
		return nil, graphError(err, "entity search failed")
	}
	if matches == nil {
		matches = []entity.EntityMatch{}
	}
	return matches, nil
}

// SemanticSearch 语义检索，向量能力不可用时返回空结果
func (s *Service) SemanticSearch(ctx context.Context, novelID, query string, opts retrieval.SearchOptions) []entity.VectorMatch {
	if s.vectors == nil {
		return []entity.VectorMatch{}
	}
	return s.vectors.SemanticSearch(ctx, novelID, query, opts)
}

// ChapterSequence 按章节号升序返回章节
func (s *Service) ChapterSequence(ctx context.Context, novelID string, limit int) ([]*entity.Chapter, error) {
	chapters, err := s.graph.GetChapterSequence(ctx, novelID, limit)
	if err != nil {
		return nil, graphError(err, "failed to read chapter sequence")
	}
	if chapters == nil {
		chapters = []*entity.Chapter{}
	}
	return chapters, nil
}
