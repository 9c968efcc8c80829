package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// DeliveryObserver 观察每次投递的结果
type DeliveryObserver interface {
	Started(ctx context.Context, stream Stream, msg *Message, attempt int)
	Succeeded(ctx context.Context, stream Stream, msg *Message, attempt int)
	Failed(ctx context.Context, stream Stream, msg *Message, attempt int, err error, terminal bool)
}

// Consumer 消息消费者
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         string
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig
	concurrency   int
	observer      DeliveryObserver

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	done     chan struct{}

	sem      *semaphore.Weighted
	inflight sync.Map
	wg       sync.WaitGroup
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         string
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
	Concurrency   int
	Observer      DeliveryObserver
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   maxDuration(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		concurrency:   cfg.Concurrency,
		observer:      cfg.Observer,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// SetConcurrency 调整并发上限，仅在启动前生效
func (c *Consumer) SetConcurrency(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running && n > c.concurrency {
		c.concurrency = n
	}
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.sem = semaphore.NewWeighted(int64(c.concurrency))
	c.mu.Unlock()

	// 确保消费者组存在
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者并等待处理中的消息完成
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()

	<-c.done
	c.wg.Wait()
}

// run 消费循环
func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
		"concurrency", c.concurrency,
	)

	lastClaim := time.Now().Add(-c.claimInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped due to context cancellation", "stream", c.stream)
			return
		case <-c.stopCh:
			log.Info("consumer stopped", "stream", c.stream)
			return
		default:
		}

		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		// 读取消息
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    int64(c.concurrency),
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", "error", err, "stream", c.stream)
			c.sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.dispatch(ctx, xmsg, 1)
			}
		}
	}
}

// dispatch 在并发上限内异步处理消息
func (c *Consumer) dispatch(ctx context.Context, xmsg redis.XMessage, attempt int) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	c.inflight.Store(xmsg.ID, struct{}{})
	c.wg.Add(1)
	go func() {
		defer func() {
			c.inflight.Delete(xmsg.ID)
			c.sem.Release(1)
			c.wg.Done()
		}()
		c.processMessage(ctx, xmsg, attempt)
	}()
}

func (c *Consumer) isInflight(id string) bool {
	_, ok := c.inflight.Load(id)
	return ok
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage, attempt int) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
			attribute.Int("attempt", attempt),
		))
	defer span.End()

	msg, ok := c.decode(ctx, xmsg)
	if !ok {
		c.ack(ctx, xmsg.ID)
		return
	}

	// 注入日志上下文
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)
	if msg.NovelID != "" {
		ctx = logger.WithContext(ctx, logger.NovelIDKey, msg.NovelID)
	}
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}

	log := logger.FromContext(ctx)

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("novel_id", msg.NovelID),
	)

	// 查找处理器
	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		log.Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		return
	}

	msg.Attempt = attempt
	if c.observer != nil {
		c.observer.Started(ctx, c.stream, msg, attempt)
	}

	// 执行处理器
	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		log.Warn("handler failed", "error", err.Error(), "type", msg.Type, "attempt", attempt)
		c.handleFailure(ctx, xmsg, msg, attempt, err)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
	if c.observer != nil {
		c.observer.Succeeded(ctx, c.stream, msg, attempt)
	}
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) decode(ctx context.Context, xmsg redis.XMessage) (*Message, bool) {
	dataStr, ok := xmsg.Values[payloadField].(string)
	if !ok {
		logger.FromContext(ctx).Error("invalid message format", "message_id", xmsg.ID)
		return nil, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(dataStr), &msg); err != nil {
		logger.FromContext(ctx).Error("failed to unmarshal message", "error", err, "message_id", xmsg.ID)
		return nil, false
	}
	return &msg, true
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), c.group, id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// limitFor 单条消息的尝试上限不超过消费者上限
func (c *Consumer) limitFor(msg *Message) int {
	if msg != nil && msg.MaxAttempts > 0 && msg.MaxAttempts < c.retryLimit {
		return msg.MaxAttempts
	}
	return c.retryLimit
}

// handleFailure 处理失败：未达上限时留在 pending 等待退避重试，否则移入死信队列
func (c *Consumer) handleFailure(ctx context.Context, xmsg redis.XMessage, msg *Message, attempt int, err error) {
	log := logger.FromContext(ctx)
	terminal := shouldDeadLetter(attempt, c.limitFor(msg))

	if terminal {
		log.Warn("message moved to DLQ after max retries",
			"message_id", msg.ID,
			"attempts", attempt,
		)
		c.moveToDLQ(ctx, msg, err)
		c.ack(ctx, xmsg.ID)
	} else {
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "retry").Inc()
		log.Info("message left pending for retry",
			"message_id", msg.ID,
			"attempts", attempt,
			"next_backoff", c.backoff.CalculateBackoff(attempt-1).String(),
		)
	}

	if c.observer != nil {
		c.observer.Failed(ctx, c.stream, msg, attempt, err, terminal)
	}
}

// shouldDeadLetter 判断是否已耗尽重试
func shouldDeadLetter(attempt, limit int) bool {
	return attempt >= limit
}

// moveToDLQ 移入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, err error) {
	dlqStream := c.stream.DLQStream()

	dlqMsg := map[string]any{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           err.Error(),
		"failed_at":       time.Now().Unix(),
	}

	data, _ := json.Marshal(dlqMsg)
	if xerr := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]any{payloadField: string(data)},
	}).Err(); xerr != nil {
		logger.Error(ctx, "failed to write DLQ entry", xerr, "message_id", msg.ID)
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dead").Inc()
	metrics.JobsDeadLettered.WithLabelValues(string(c.stream), msg.Type).Inc()
}

// claimExhausted 认领已耗尽重试次数的消息并移入死信队列
func (c *Consumer) claimExhausted(ctx context.Context, id string, minIdle time.Duration, attempts int) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    c.group,
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending message for DLQ", "error", err, "message_id", id)
		return
	}

	for _, xmsg := range claimed {
		msg, ok := c.decode(ctx, xmsg)
		if !ok {
			c.ack(ctx, xmsg.ID)
			continue
		}
		cause := fmt.Errorf("message exceeded max retries")
		c.moveToDLQ(ctx, msg, cause)
		c.ack(ctx, xmsg.ID)
		if c.observer != nil {
			c.observer.Failed(ctx, c.stream, msg, attempts, cause, true)
		}
	}
}

func (c *Consumer) processDuePending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    c.group,
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: c.consumerName,
	}).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return
		}
		logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		return
	}

	for i := range pending {
		p := pending[i]
		if c.isInflight(p.ID) {
			continue
		}
		retryCount := int(p.RetryCount)
		if retryCount >= c.retryLimit {
			c.claimExhausted(ctx, p.ID, 0, retryCount)
			continue
		}

		backoff := c.backoff.CalculateBackoff(retryCount - 1)
		if p.Idle < backoff {
			continue
		}

		claimed, claimErr := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    c.group,
			Consumer: c.consumerName,
			MinIdle:  backoff,
			Messages: []string{p.ID},
		}).Result()
		if claimErr != nil {
			logger.FromContext(ctx).Error("failed to claim pending message", "error", claimErr, "message_id", p.ID)
			continue
		}

		for _, xmsg := range claimed {
			c.dispatch(ctx, xmsg, retryCount+1)
		}
	}
}

func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  20,
	}).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return
		}
		logger.FromContext(ctx).Error("failed to query pending messages for reclaim", "error", err)
		return
	}

	for i := range pending {
		p := pending[i]
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		if int(p.RetryCount) >= c.retryLimit {
			c.claimExhausted(ctx, p.ID, c.reclaimIdle, int(p.RetryCount))
			continue
		}

		claimed, claimErr := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    c.group,
			Consumer: c.consumerName,
			MinIdle:  c.reclaimIdle,
			Messages: []string{p.ID},
		}).Result()
		if claimErr != nil {
			logger.FromContext(ctx).Error("failed to reclaim pending message", "error", claimErr, "message_id", p.ID)
			continue
		}

		for _, xmsg := range claimed {
			c.dispatch(ctx, xmsg, int(p.RetryCount)+1)
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-c.stopCh:
	case <-time.After(d):
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// MonitorDLQ 监控死信队列
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64, interval time.Duration) {
	log := logger.FromContext(ctx)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			dlqStream := c.stream.DLQStream()
			length, err := c.client.XLen(ctx, dlqStream).Result()
			if err != nil {
				continue
			}
			metrics.RedisStreamLag.WithLabelValues(dlqStream, c.group).Set(float64(length))

			if length > alertThreshold {
				log.Warn("DLQ has pending messages",
					"stream", dlqStream,
					"count", length,
				)
			}
		}
	}
}
