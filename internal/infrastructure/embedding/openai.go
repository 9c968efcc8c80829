package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"

	"novel-orchestrator/internal/config"
)

// NewOpenAIEmbedder 创建基于 go-openai 的 Embedder
func NewOpenAIEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return WrapOpenAI(openai.NewClientWithConfig(clientCfg), cfg), nil
}

// WrapOpenAI 复用已有的 go-openai 客户端
func WrapOpenAI(client *openai.Client, cfg *config.EmbeddingConfig) Embedder {
	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	return &batched{
		name:      "openai",
		model:     string(model),
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		call: func(ctx context.Context, texts []string) ([][]float32, error) {
			resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: model,
				Input: texts,
			})
			if err != nil {
				return nil, fmt.Errorf("creating embeddings: %w", err)
			}
			data := resp.Data
			sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
			out := make([][]float32, len(data))
			for i, d := range data {
				out[i] = d.Embedding
			}
			return out, nil
		},
	}
}
