// Package memory 小说记忆层：以图数据库为权威副本，协调缓存、向量索引与后台任务
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
)

var tracer = otel.Tracer("memory")

// VectorIndex 记忆层依赖的向量能力
type VectorIndex interface {
	Enabled() bool
	IndexCharacter(ctx context.Context, c *entity.Character) (int, error)
	IndexLocation(ctx context.Context, l *entity.Location) (int, error)
	IndexChapter(ctx context.Context, ch *entity.Chapter) (int, error)
	SemanticSearch(ctx context.Context, novelID, query string, opts retrieval.SearchOptions) []entity.VectorMatch
}

// Service 记忆层服务
type Service struct {
	graph   repository.GraphRepository
	cache   repository.Cache
	queue   repository.JobQueue
	vectors VectorIndex

	ttl         config.TTLConfig
	similarTopK int
	sf          singleflight.Group
}

// NewService 创建记忆层服务
func NewService(cfg *config.Config, graph repository.GraphRepository, cache repository.Cache, queue repository.JobQueue, vectors VectorIndex) *Service {
	s := &Service{
		graph:       graph,
		cache:       cache,
		queue:       queue,
		vectors:     vectors,
		ttl:         cfg.Cache.TTL,
		similarTopK: cfg.Generation.SimilarTopK,
	}
	if s.similarTopK <= 0 {
		s.similarTopK = 5
	}
	if s.ttl.Entity <= 0 {
		s.ttl.Entity = time.Hour
	}
	if s.ttl.Chapter <= 0 {
		s.ttl.Chapter = 2 * time.Hour
	}
	if s.ttl.WorldState <= 0 {
		s.ttl.WorldState = 24 * time.Hour
	}
	return s
}

// CreateNovel 创建或更新小说
func (s *Service) CreateNovel(ctx context.Context, n *entity.Novel) (*entity.Novel, []string, error) {
	n.Normalize()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, nil, apperrors.Validation("title is required")
	}
	if !n.Status.Valid() {
		return nil, nil, apperrors.Validation("invalid novel status %q", n.Status)
	}
	if err := s.graph.UpsertNovel(ctx, n); err != nil {
		return nil, nil, graphError(err, "failed to save novel")
	}
	task := EntityTask{Kind: KindNovel, NovelID: n.ID}
	return n, s.afterWrite(ctx, task, false), nil
}

// CreateCharacter 创建或更新角色
func (s *Service) CreateCharacter(ctx context.Context, c *entity.Character) (*entity.Character, []string, error) {
	c.Normalize()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.NovelID == "" || strings.TrimSpace(c.Name) == "" {
		return nil, nil, apperrors.Validation("novelId and name are required")
	}
	if err := s.graph.UpsertCharacter(ctx, c); err != nil {
		return nil, nil, graphError(err, "failed to save character")
	}
	task := EntityTask{Kind: KindCharacter, NovelID: c.NovelID, EntityID: c.ID}
	return c, s.afterWrite(ctx, task, true), nil
}

// CreateLocation 创建或更新地点
func (s *Service) CreateLocation(ctx context.Context, l *entity.Location) (*entity.Location, []string, error) {
	l.Normalize()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.NovelID == "" || strings.TrimSpace(l.Name) == "" {
		return nil, nil, apperrors.Validation("novelId and name are required")
	}
	if !l.Type.Valid() {
		return nil, nil, apperrors.Validation("invalid location type %q", l.Type)
	}
	if err := s.graph.UpsertLocation(ctx, l); err != nil {
		return nil, nil, graphError(err, "failed to save location")
	}
	task := EntityTask{Kind: KindLocation, NovelID: l.NovelID, EntityID: l.ID}
	return l, s.afterWrite(ctx, task, true), nil
}

// SaveChapter 保存章节，(novelId, number) 相同的重复提交合并为一条
func (s *Service) SaveChapter(ctx context.Context, ch *entity.Chapter) (*entity.Chapter, []string, error) {
	ch.Normalize()
	if ch.NovelID == "" || ch.Number <= 0 {
		return nil, nil, apperrors.Validation("novelId and a positive chapter number are required")
	}
	if !ch.Status.Valid() {
		return nil, nil, apperrors.Validation("invalid chapter status %q", ch.Status)
	}
	if err := s.graph.UpsertChapter(ctx, ch); err != nil {
		return nil, nil, graphError(err, "failed to save chapter")
	}
	task := EntityTask{Kind: KindChapter, NovelID: ch.NovelID, ChapterNumber: ch.Number}
	return ch, s.afterWrite(ctx, task, true), nil
}

// UpdateWorldState 浅合并世界状态并同步刷新缓存
func (s *Service) UpdateWorldState(ctx context.Context, novelID string, patch map[string]any) (*entity.WorldState, error) {
	if strings.TrimSpace(novelID) == "" {
		return nil, apperrors.Validation("novelId is required")
	}
	if len(patch) == 0 {
		return nil, apperrors.Validation("world state patch must not be empty")
	}
	ws, err := s.graph.UpsertWorldState(ctx, novelID, patch)
	if err != nil {
		return nil, graphError(err, "failed to update world state")
	}
	s.cache.Set(ctx, worldStateKey(novelID), ws, s.ttl.WorldState)
	return ws, nil
}

// afterWrite 失效缓存并投递回填与索引任务，投递失败只告警，不回滚图写入
func (s *Service) afterWrite(ctx context.Context, task EntityTask, index bool) []string {
	s.cache.Del(ctx, task.cacheKey())

	jobIDs := make([]string, 0, 2)
	if index {
		if h := s.enqueue(ctx, QueueIndex, JobTypeIndexEntity, task); h != nil {
			jobIDs = append(jobIDs, h.ID)
		}
	}
	if h := s.enqueue(ctx, QueueCache, JobTypeCacheRefresh, task); h != nil {
		jobIDs = append(jobIDs, h.ID)
	}
	return jobIDs
}

func (s *Service) enqueue(ctx context.Context, queue, jobType string, task EntityTask) *repository.JobHandle {
	if s.queue == nil {
		return nil
	}
	h, err := s.queue.Enqueue(ctx, queue, jobType, task)
	if err != nil {
		logger.Warn(ctx, "failed to enqueue background job",
			"queue", queue, "type", jobType, "kind", task.Kind,
			"novel_id", task.NovelID, "error", err.Error())
		return nil
	}
	return h
}

func graphError(err error, msg string) error {
	if errors.Is(err, repository.ErrNovelNotFound) {
		return apperrors.ErrNovelNotFound.WithError(err)
	}
	return apperrors.Wrap(err, apperrors.CodeGraphError, msg)
}

func notFound(err error, appErr *apperrors.AppError, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return appErr.WithError(err)
	}
	return graphError(err, msg)
}

// JobStatus 查询后台任务状态
func (s *Service) JobStatus(ctx context.Context, jobID string) (*entity.Job, error) {
	if s.queue == nil {
		return nil, apperrors.ErrJobNotFound
	}
	job, err := s.queue.JobStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrJobNotFound.WithError(err)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeQueueError, fmt.Sprintf("failed to read job %s", jobID))
	}
	return job, nil
}
