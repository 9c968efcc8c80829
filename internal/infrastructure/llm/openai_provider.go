package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/infrastructure/embedding"
	"novel-orchestrator/pkg/metrics"
)

// OpenAIProvider 基于 go-openai SDK 的提供商，兼容任何 OpenAI 协议端点
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	embedder    embedding.Embedder
}

// NewOpenAIProvider 创建 go-openai 提供商
func NewOpenAIProvider(name string, cfg config.ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}
	p := &OpenAIProvider{
		name:        name,
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
	}
	if cfg.EmbeddingModel != "" {
		p.embedder = embedding.WrapOpenAI(client, &config.EmbeddingConfig{Model: cfg.EmbeddingModel, Timeout: cfg.Timeout})
	}
	return p, nil
}

// Name 提供商名称
func (p *OpenAIProvider) Name() string { return p.name }

// Generate 调用 Chat Completions
func (p *OpenAIProvider) Generate(ctx context.Context, msgs []*schema.Message, opts GenerateOptions) (gen *Generation, err error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	ctx, span := tracer.Start(ctx, "llm.openai.Generate",
		trace.WithAttributes(
			attribute.String("llm.provider", p.name),
			attribute.String("llm.model", model),
		))
	defer span.End()
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		metrics.LLMCallTotal.WithLabelValues(p.name, model, status).Inc()
		metrics.LLMCallDuration.WithLabelValues(p.name, model).Observe(time.Since(start).Seconds())
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(msgs),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	metrics.LLMTokensUsed.WithLabelValues(p.name, model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(p.name, model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return &Generation{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Provider:     p.name,
		Model:        model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Embed 向量化
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnsupported, p.name)
	}
	return p.embedder.Embed(ctx, texts)
}

func toOpenAIMessages(msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
