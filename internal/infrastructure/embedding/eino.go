package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"

	"novel-orchestrator/internal/config"
)

// NewEinoEmbedder 创建基于 Eino OpenAI 适配器的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (Embedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return WrapEino(embedder, cfg), nil
}

// WrapEino 将任意 Eino Embedder 包装为 Embedder
func WrapEino(e einoembedding.Embedder, cfg *config.EmbeddingConfig) Embedder {
	return &batched{
		name:      "eino",
		model:     cfg.Model,
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		call: func(ctx context.Context, texts []string) ([][]float32, error) {
			vecs, err := e.EmbedStrings(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("eino embed: %w", err)
			}
			return toFloat32(vecs), nil
		},
	}
}
