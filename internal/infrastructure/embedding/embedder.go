// Package embedding 提供文本向量化适配器
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("embedding")

// ErrNoEmbedding 返回的向量数量与输入不一致
var ErrNoEmbedding = errors.New("embedding provider returned no vectors")

const defaultBatchSize = 32

// Embedder 文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// batchFunc 单批向量化
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// NewEmbedder 按配置创建 Embedder，provider 为 none 或空时返回 nil
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "eino":
		return NewEinoEmbedder(ctx, cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "http":
		return NewHTTPEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// batched 按批次调用并校验结果数量
type batched struct {
	name      string
	model     string
	dim       int
	batchSize int
	timeout   time.Duration
	call      batchFunc
}

func (b *batched) Name() string   { return b.name }
func (b *batched) Dimension() int { return b.dim }

// Embed 分批向量化，任一批失败即返回错误
func (b *batched) Embed(ctx context.Context, texts []string) (out [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx, span := tracer.Start(ctx, "embedding.Embed",
		trace.WithAttributes(
			attribute.String("provider", b.name),
			attribute.Int("count", len(texts)),
		))
	defer span.End()
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		metrics.LLMCallTotal.WithLabelValues("embedding:"+b.name, b.model, status).Inc()
		metrics.LLMCallDuration.WithLabelValues("embedding:"+b.name, b.model).Observe(time.Since(start).Seconds())
	}()

	size := b.batchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	out = make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += size {
		end := min(i+size, len(texts))
		callCtx := ctx
		var cancel context.CancelFunc
		if b.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		}
		vecs, err := b.call(callCtx, texts[i:end])
		if cancel != nil {
			cancel()
		}
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("%w: got %d for %d inputs", ErrNoEmbedding, len(vecs), end-i)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out
}
