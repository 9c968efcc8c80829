// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"novel-orchestrator/internal/domain/entity"
)

var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("entity not found")
	// ErrNovelNotFound 关联的小说不存在，拒绝创建孤儿实体
	ErrNovelNotFound = errors.New("novel not found")
)

// GraphRepository 权威图数据库接口
type GraphRepository interface {
	UpsertNovel(ctx context.Context, novel *entity.Novel) error
	UpsertCharacter(ctx context.Context, character *entity.Character) error
	UpsertLocation(ctx context.Context, location *entity.Location) error
	UpsertChapter(ctx context.Context, chapter *entity.Chapter) error
	// UpsertWorldState 浅合并 patch 并返回合并后的状态
	UpsertWorldState(ctx context.Context, novelID string, patch map[string]any) (*entity.WorldState, error)

	GetNovel(ctx context.Context, novelID string) (*entity.Novel, error)
	GetCharacter(ctx context.Context, novelID, characterID string) (*entity.Character, error)
	GetLocation(ctx context.Context, novelID, locationID string) (*entity.Location, error)
	GetChapter(ctx context.Context, novelID string, number int) (*entity.Chapter, error)
	GetWorldState(ctx context.Context, novelID string) (*entity.WorldState, error)

	// GetContext chapterNumber 为 0 时返回全部章节摘要
	GetContext(ctx context.Context, novelID string, chapterNumber int) (*entity.GraphContext, error)
	GetChapterSequence(ctx context.Context, novelID string, limit int) ([]*entity.Chapter, error)
	SearchEntities(ctx context.Context, novelID, text string, types []string) ([]entity.EntityMatch, error)
}

// VectorStore 向量数据库接口，按命名空间隔离
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []entity.VectorRecord) error
	Query(ctx context.Context, q entity.VectorQuery) ([]entity.VectorMatch, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	// DeleteStale 删除命名空间内属于该实体、但 ID 不在 keep 中的向量
	DeleteStale(ctx context.Context, namespace, entityType, entityID string, keep []string) error
	Backend() string
}

// Cache 缓存接口，所有操作在存储不可用时降级为 nil/false
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	GetJSON(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Del(ctx context.Context, keys ...string) bool
	HSet(ctx context.Context, key string, values map[string]any, ttl time.Duration) bool
	HGet(ctx context.Context, key, field string) (string, bool)
	HGetAll(ctx context.Context, key string) (map[string]string, bool)
}

// EnqueueOptions 入队选项
type EnqueueOptions struct {
	MaxAttempts int
	JobID       string
}

// EnqueueOption 入队选项函数
type EnqueueOption func(*EnqueueOptions)

// WithMaxAttempts 设置最大尝试次数
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) { o.MaxAttempts = n }
}

// WithJobID 指定任务 ID
func WithJobID(id string) EnqueueOption {
	return func(o *EnqueueOptions) { o.JobID = id }
}

// JobHandle 入队后返回的任务句柄
type JobHandle struct {
	ID       string `json:"id"`
	Queue    string `json:"queue"`
	Type     string `json:"type"`
	StreamID string `json:"streamId,omitempty"`
}

// JobHandler 任务处理函数
type JobHandler func(ctx context.Context, job *entity.Job) error

// JobQueue 后台任务队列接口
type JobQueue interface {
	Enqueue(ctx context.Context, queue, jobType string, payload any, opts ...EnqueueOption) (*JobHandle, error)
	RegisterProcessor(queue, jobType string, handler JobHandler, concurrency int)
	JobStatus(ctx context.Context, jobID string) (*entity.Job, error)
}

// DecodePayload 解码任务载荷
func DecodePayload[T any](job *entity.Job) (*T, error) {
	var v T
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
