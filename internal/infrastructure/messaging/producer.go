package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

const (
	defaultStreamMaxLen = 100000
	// payloadField 流条目中保存消息 JSON 的字段名
	payloadField = "data"
)

// errEmptyJobType 消息缺少类型时无法路由到处理器
var errEmptyJobType = errors.New("job message has no type")

// Producer 把任务消息追加到 Redis Stream，流长度按近似 MAXLEN 裁剪
type Producer struct {
	rdb    *redis.Client
	maxLen int64
}

// NewProducer 创建生产者，maxLen 非正时使用默认上限
func NewProducer(rdb *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Producer{rdb: rdb, maxLen: maxLen}
}

// Publish 写入一条任务消息，返回流条目 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (entryID string, err error) {
	ctx, span := tracer.Start(ctx, "producer.Publish", trace.WithAttributes(
		attribute.String("stream", string(stream)),
		attribute.String("job.id", msg.ID),
		attribute.String("job.type", msg.Type),
		attribute.String("novel.id", msg.NovelID),
	))
	defer span.End()
	defer func() {
		status := "enqueued"
		if err != nil {
			status = "enqueue_failed"
			span.RecordError(err)
		}
		metrics.RedisStreamProcessed.WithLabelValues(string(stream), status).Inc()
	}()

	if msg.Type == "" {
		return "", errEmptyJobType
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job message: %w", err)
	}

	entryID, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}

	span.SetAttributes(attribute.String("stream.entry_id", entryID))
	return entryID, nil
}
