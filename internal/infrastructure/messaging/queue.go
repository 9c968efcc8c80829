package messaging

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/pkg/logger"
	traceutil "novel-orchestrator/pkg/tracer"
)

// FailureHook 任务耗尽重试后的回调
type FailureHook func(ctx context.Context, job *entity.Job, err error)

// NovelScoped 载荷可声明所属小说，用于日志与任务状态
type NovelScoped interface {
	ScopeNovelID() string
}

// QueueConfig 队列配置
type QueueConfig struct {
	GroupPrefix       string
	ConsumerName      string
	BlockTimeout      time.Duration
	ClaimInterval     time.Duration
	RetryLimit        int
	Backoff           BackoffConfig
	StatusTTL         time.Duration
	Concurrency       map[string]int
	DLQAlertThreshold int64
	DLQCheckInterval  time.Duration
}

// Queue 类型化任务队列：Enqueue 投递，RegisterProcessor 按任务类型注册处理器
type Queue struct {
	rdb      *redis.Client
	producer *Producer
	cfg      QueueConfig

	mu        sync.Mutex
	consumers map[Stream]*Consumer
	onFailure FailureHook
	runCtx    context.Context
	started   bool
}

// NewQueue 创建任务队列
func NewQueue(rdb *redis.Client, producer *Producer, cfg QueueConfig) *Queue {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if cfg.ConsumerName == "" {
		host, _ := os.Hostname()
		cfg.ConsumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Queue{
		rdb:       rdb,
		producer:  producer,
		cfg:       cfg,
		consumers: make(map[Stream]*Consumer),
	}
}

// OnFailure 设置终态失败回调
func (q *Queue) OnFailure(hook FailureHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = hook
}

// Enqueue 投递任务
func (q *Queue) Enqueue(ctx context.Context, queue, jobType string, payload any, opts ...repository.EnqueueOption) (*repository.JobHandle, error) {
	o := repository.EnqueueOptions{MaxAttempts: q.cfg.RetryLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.JobID == "" {
		o.JobID = uuid.NewString()
	}

	msg, err := NewMessage(o.JobID, jobType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	msg.MaxAttempts = o.MaxAttempts
	if scoped, ok := payload.(NovelScoped); ok {
		msg.NovelID = scoped.ScopeNovelID()
	}
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if traceID := traceutil.TraceID(ctx); traceID != "" {
		msg.SetMetadata("trace_id", traceID)
	}

	job := entity.NewJob(msg.ID, queue, jobType, msg.Payload, o.MaxAttempts)
	q.writeStatus(ctx, job, msg.NovelID)

	streamID, err := q.producer.Publish(ctx, Stream(queue), msg)
	if err != nil {
		return nil, err
	}

	return &repository.JobHandle{ID: msg.ID, Queue: queue, Type: jobType, StreamID: streamID}, nil
}

// RegisterProcessor 注册任务处理器，concurrency 为该队列的并发上限
func (q *Queue) RegisterProcessor(queue, jobType string, handler repository.JobHandler, concurrency int) {
	q.mu.Lock()
	stream := Stream(queue)
	consumer, ok := q.consumers[stream]
	if !ok {
		consumer = NewConsumer(q.rdb, ConsumerConfig{
			Stream:        stream,
			Group:         ConsumerGroup(q.cfg.GroupPrefix, stream),
			ConsumerName:  q.cfg.ConsumerName,
			BlockTimeout:  q.cfg.BlockTimeout,
			ClaimInterval: q.cfg.ClaimInterval,
			RetryLimit:    q.cfg.RetryLimit,
			Backoff:       q.cfg.Backoff,
			Concurrency:   concurrency,
			Observer:      q,
		})
		q.consumers[stream] = consumer
	}
	if override := q.cfg.Concurrency[queue]; override > concurrency {
		concurrency = override
	}
	consumer.SetConcurrency(concurrency)
	startNow := q.started && !ok
	runCtx := q.runCtx
	q.mu.Unlock()

	consumer.RegisterHandler(jobType, func(ctx context.Context, msg *Message) error {
		job := entity.NewJob(msg.ID, queue, msg.Type, msg.Payload, consumer.limitFor(msg))
		job.Attempts = msg.Attempt
		job.State = entity.JobStateProcessing
		return handler(ctx, job)
	})

	if startNow {
		q.startConsumer(runCtx, consumer)
	}
}

// Start 启动所有已注册队列的消费者
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return fmt.Errorf("queue already started")
	}
	q.started = true
	q.runCtx = ctx
	consumers := make([]*Consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.mu.Unlock()

	for _, c := range consumers {
		if err := q.startConsumer(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) startConsumer(ctx context.Context, c *Consumer) error {
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start consumer for %s: %w", c.stream, err)
	}
	if q.cfg.DLQAlertThreshold > 0 {
		go c.MonitorDLQ(ctx, q.cfg.DLQAlertThreshold, q.cfg.DLQCheckInterval)
	}
	return nil
}

// Stop 停止所有消费者并等待处理中的任务结束
func (q *Queue) Stop() {
	q.mu.Lock()
	consumers := make([]*Consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.started = false
	q.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
}

// Started 实现 DeliveryObserver
func (q *Queue) Started(ctx context.Context, stream Stream, msg *Message, attempt int) {
	job := q.jobFrom(stream, msg, attempt)
	q.writeStatus(ctx, job, msg.NovelID)
}

// Succeeded 实现 DeliveryObserver
func (q *Queue) Succeeded(ctx context.Context, stream Stream, msg *Message, attempt int) {
	job := q.jobFrom(stream, msg, attempt)
	_ = job.Complete()
	q.writeStatus(ctx, job, msg.NovelID)
}

// Failed 实现 DeliveryObserver
func (q *Queue) Failed(ctx context.Context, stream Stream, msg *Message, attempt int, err error, terminal bool) {
	job := q.jobFrom(stream, msg, attempt)
	if terminal {
		job.MaxAttempts = attempt
	}
	_, _ = job.Fail(err)
	q.writeStatus(ctx, job, msg.NovelID)

	if !terminal {
		return
	}
	q.mu.Lock()
	hook := q.onFailure
	q.mu.Unlock()
	if hook != nil {
		hook(ctx, job, err)
	}
}

func (q *Queue) jobFrom(stream Stream, msg *Message, attempt int) *entity.Job {
	limit := msg.MaxAttempts
	if limit <= 0 || limit > q.cfg.RetryLimit {
		limit = q.cfg.RetryLimit
	}
	job := entity.NewJob(msg.ID, string(stream), msg.Type, msg.Payload, limit)
	job.CreatedAt = msg.CreatedAt
	job.Attempts = attempt - 1
	_ = job.Start()
	return job
}

func jobStatusKey(id string) string {
	return "job:" + id
}

// writeStatus 记录任务状态，失败时仅告警
func (q *Queue) writeStatus(ctx context.Context, job *entity.Job, novelID string) {
	fields := map[string]any{
		"id":          job.ID,
		"queue":       job.Queue,
		"type":        job.Type,
		"state":       string(job.State),
		"attempts":    job.Attempts,
		"maxAttempts": job.MaxAttempts,
		"lastError":   job.LastError,
		"novelId":     novelID,
		"createdAt":   job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":   job.UpdatedAt.Format(time.RFC3339Nano),
	}
	key := jobStatusKey(job.ID)
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, q.cfg.StatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn(ctx, "failed to record job status", "job_id", job.ID, "error", err.Error())
	}
}

// JobStatus 查询任务状态
func (q *Queue) JobStatus(ctx context.Context, jobID string) (*entity.Job, error) {
	values, err := q.rdb.HGetAll(ctx, jobStatusKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	attempts, _ := strconv.Atoi(values["attempts"])
	maxAttempts, _ := strconv.Atoi(values["maxAttempts"])
	job := &entity.Job{
		ID:          values["id"],
		Queue:       values["queue"],
		Type:        values["type"],
		State:       entity.JobState(values["state"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		LastError:   values["lastError"],
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, values["createdAt"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, values["updatedAt"])
	if job.IsTerminal() {
		finished := job.UpdatedAt
		job.FinishedAt = &finished
	}
	return job, nil
}
