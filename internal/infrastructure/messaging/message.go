// Package messaging 提供基于 Redis Streams 的后台任务队列
package messaging

import (
	"encoding/json"
	"time"
)

// Message 流中的任务消息
type Message struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	NovelID     string            `json:"novel_id,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata"`
	MaxAttempts int               `json:"max_attempts"`
	CreatedAt   time.Time         `json:"created_at"`

	// Attempt 当前投递序号，由消费者在处理前设置
	Attempt int `json:"-"`
}

// NewMessage 以 JSON 编码载荷构造消息
func NewMessage(id, msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Type: msgType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}

// SetMetadata 写入透传字段（request_id、trace_id）
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, 2)
	}
	m.Metadata[key] = value
}

// GetMetadata 读取透传字段，nil map 读取安全
func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解码载荷到 v
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	// StreamIndex 向量索引任务
	StreamIndex Stream = "stream:index"
	// StreamCache 缓存回填任务
	StreamCache Stream = "stream:cache"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
func ConsumerGroup(prefix string, s Stream) string {
	if prefix == "" {
		prefix = "novel"
	}
	return "cg-" + prefix + "-" + string(s)
}

// BackoffConfig 指数退避参数
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起步，翻倍，封顶 1m
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重试前的等待时间，Initial*Multiplier^retryCount 并截断到 Max
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	d := float64(c.Initial)
	for i := 0; i < retryCount && d < float64(c.Max); i++ {
		d *= c.Multiplier
	}
	if c.Max > 0 && d > float64(c.Max) {
		return c.Max
	}
	return time.Duration(d)
}
