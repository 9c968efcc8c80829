// Package llm 提供 AI 提供商客户端：按名称选择适配器，统一生成、评估与向量化
package llm

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("llm")

// ErrUnknownProvider 请求的提供商未配置
var ErrUnknownProvider = errors.New("unknown llm provider")

// ErrEmbeddingUnsupported 提供商未配置向量模型
var ErrEmbeddingUnsupported = errors.New("provider has no embedding model configured")

// 提供商类型
const (
	KindEino   = "eino"
	KindOpenAI = "openai"
)

// Usage Token 用量
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerateOptions 单次生成参数，零值表示使用提供商默认
type GenerateOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// Generation 生成结果
type Generation struct {
	Content      string `json:"content"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finishReason"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

// Provider 提供商适配器
type Provider interface {
	Name() string
	Generate(ctx context.Context, msgs []*schema.Message, opts GenerateOptions) (*Generation, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderSource 按名称解析提供商
type ProviderSource interface {
	Get(ctx context.Context, name string) (Provider, error)
}
