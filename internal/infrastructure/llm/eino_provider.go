package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/infrastructure/embedding"
	einoobs "novel-orchestrator/internal/observability/eino"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// EinoProvider 基于 Eino OpenAI 兼容适配器的提供商
// 调用指标由 observability/eino 的全局回调记录
type EinoProvider struct {
	name      string
	modelName string
	chat      model.BaseChatModel
	embedder  embedding.Embedder
}

// NewEinoProvider 创建 Eino 提供商
func NewEinoProvider(ctx context.Context, name string, cfg config.ProviderConfig) (*EinoProvider, error) {
	chatCfg := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		chatCfg.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		chatCfg.Temperature = ptrFloat32(float32(cfg.Temperature))
	}
	chatModel, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model: %w", err)
	}

	p := &EinoProvider{name: name, modelName: cfg.Model, chat: chatModel}
	if cfg.EmbeddingModel != "" {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		p.embedder, err = embedding.NewEinoEmbedder(ctx, &config.EmbeddingConfig{
			APIKey:   cfg.APIKey,
			Endpoint: baseURL,
			Model:    cfg.EmbeddingModel,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewEinoProviderWithModel 使用现成的 ChatModel 构建提供商
func NewEinoProviderWithModel(name, modelName string, chat model.BaseChatModel, embedder embedding.Embedder) *EinoProvider {
	return &EinoProvider{name: name, modelName: modelName, chat: chat, embedder: embedder}
}

// Name 提供商名称
func (p *EinoProvider) Name() string { return p.name }

// Generate 生成内容
func (p *EinoProvider) Generate(ctx context.Context, msgs []*schema.Message, opts GenerateOptions) (*Generation, error) {
	ctx = einoobs.WithProvider(ctx, p.name)

	outMsg, err := p.chat.Generate(ctx, msgs, buildModelOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}

	gen := &Generation{
		Content:  outMsg.Content,
		Provider: p.name,
		Model:    p.modelName,
	}
	if opts.Model != "" {
		gen.Model = opts.Model
	}
	if meta := outMsg.ResponseMeta; meta != nil {
		gen.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			gen.Usage = Usage{
				PromptTokens:     meta.Usage.PromptTokens,
				CompletionTokens: meta.Usage.CompletionTokens,
				TotalTokens:      meta.Usage.TotalTokens,
			}
		}
	}
	return gen, nil
}

// Embed 向量化
func (p *EinoProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnsupported, p.name)
	}
	return p.embedder.Embed(einoobs.WithProvider(ctx, p.name), texts)
}

func buildModelOptions(opts GenerateOptions) []model.Option {
	out := make([]model.Option, 0, 3)
	if opts.Temperature != nil {
		out = append(out, model.WithTemperature(*opts.Temperature))
	}
	if opts.MaxTokens != nil {
		out = append(out, model.WithMaxTokens(*opts.MaxTokens))
	}
	if opts.Model != "" {
		out = append(out, model.WithModel(opts.Model))
	}
	return out
}
