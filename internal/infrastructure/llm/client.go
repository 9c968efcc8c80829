package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	einoobs "novel-orchestrator/internal/observability/eino"
	"novel-orchestrator/internal/workflow/prompt"
	"novel-orchestrator/pkg/logger"
)

var (
	// ErrEmptyBatch 批量请求为空
	ErrEmptyBatch = errors.New("batch must contain at least one prompt")
	// ErrBatchTooLarge 批量请求超过上限
	ErrBatchTooLarge = errors.New("batch exceeds the maximum number of prompts")
)

const (
	defaultBatchLimit       = 10
	defaultBatchConcurrency = 4
)

// DefaultCriteria 默认评估维度
var DefaultCriteria = []string{"coherence", "creativity", "character_consistency", "pacing", "prose_quality"}

// Client AI 提供商客户端
type Client struct {
	providers        ProviderSource
	prompts          *prompt.Registry
	evaluator        string
	criteria         []string
	batchLimit       int
	batchConcurrency int
}

// NewClient 创建 AI 提供商客户端
func NewClient(cfg *config.Config, providers ProviderSource, prompts *prompt.Registry) *Client {
	c := &Client{
		providers:        providers,
		prompts:          prompts,
		evaluator:        cfg.LLM.EvaluatorProvider,
		criteria:         cfg.Generation.Criteria,
		batchLimit:       cfg.LLM.BatchLimit,
		batchConcurrency: cfg.LLM.BatchConcurrency,
	}
	if c.batchLimit <= 0 {
		c.batchLimit = defaultBatchLimit
	}
	if c.batchConcurrency <= 0 {
		c.batchConcurrency = defaultBatchConcurrency
	}
	if len(c.criteria) == 0 {
		c.criteria = DefaultCriteria
	}
	if c.prompts == nil {
		c.prompts = prompt.NewRegistry()
	}
	return c
}

// BatchLimit 单次批量生成的上限
func (c *Client) BatchLimit() int { return c.batchLimit }

// Generate 使用指定提供商生成内容，providerName 为空时使用默认提供商
func (c *Client) Generate(ctx context.Context, msgs []*schema.Message, providerName string, opts GenerateOptions) (*Generation, error) {
	p, err := c.providers.Get(ctx, providerName)
	if err != nil {
		return nil, err
	}
	ctx = einoobs.WithPurposeProvider(ctx, "generate", p.Name())
	return p.Generate(ctx, msgs, opts)
}

// GeneratePrompt 以单条用户消息生成
func (c *Client) GeneratePrompt(ctx context.Context, text, providerName string, opts GenerateOptions) (*Generation, error) {
	return c.Generate(ctx, []*schema.Message{schema.UserMessage(text)}, providerName, opts)
}

// Evaluate 按评估维度为文本打分，结构化结果解析失败时返回中性默认值
func (c *Client) Evaluate(ctx context.Context, text string, criteria []string, providerName string) (*Evaluation, error) {
	if len(criteria) == 0 {
		criteria = c.criteria
	}
	if providerName == "" {
		providerName = c.evaluator
	}
	ctx, span := tracer.Start(ctx, "llm.Evaluate",
		trace.WithAttributes(attribute.StringSlice("criteria", criteria)))
	defer span.End()

	p, err := c.providers.Get(ctx, providerName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	msgs, err := c.prompts.Format(ctx, prompt.PromptEvaluateV1, map[string]any{
		"criteria": strings.Join(criteria, ", "),
		"text":     text,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	temperature := float32(0.1)
	gen, err := p.Generate(einoobs.WithPurposeProvider(ctx, "evaluate", p.Name()), msgs, GenerateOptions{Temperature: &temperature})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	eval := ParseEvaluation(gen.Content, criteria, text)
	if eval.Fallback {
		logger.Warn(ctx, "evaluation response could not be parsed, using neutral scores",
			"provider", p.Name())
	}
	span.SetAttributes(attribute.Float64("overall_score", eval.OverallScore), attribute.Bool("fallback", eval.Fallback))
	return eval, nil
}

// EmbedResult 向量化结果
type EmbedResult struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
}

// Embed 使用提供商的向量模型向量化
func (c *Client) Embed(ctx context.Context, texts []string, providerName string) (*EmbedResult, error) {
	p, err := c.providers.Get(ctx, providerName)
	if err != nil {
		return nil, err
	}
	vecs, err := p.Embed(einoobs.WithPurposeProvider(ctx, "embed", p.Name()), texts)
	if err != nil {
		return nil, err
	}
	res := &EmbedResult{Embeddings: vecs}
	if len(vecs) > 0 {
		res.Dimensions = len(vecs[0])
	}
	return res, nil
}

// BatchItem 批量生成的单项结果
type BatchItem struct {
	Index     int    `json:"index"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	WordCount int    `json:"wordCount"`
	Usage     Usage  `json:"usage"`
	Error     string `json:"error,omitempty"`
}

// BatchResult 批量生成结果
type BatchResult struct {
	Successful     int         `json:"successful"`
	Failed         int         `json:"failed"`
	TotalWordCount int         `json:"totalWordCount"`
	Results        []BatchItem `json:"results"`
}

// BatchGenerate 并发生成多个提示，单项失败不影响其他项
func (c *Client) BatchGenerate(ctx context.Context, prompts []string, providerName string, opts GenerateOptions) (*BatchResult, error) {
	if len(prompts) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(prompts) > c.batchLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(prompts), c.batchLimit)
	}
	p, err := c.providers.Get(ctx, providerName)
	if err != nil {
		return nil, err
	}
	ctx = einoobs.WithPurposeProvider(ctx, "batch_generate", p.Name())

	items := make([]BatchItem, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchConcurrency)
	for i, text := range prompts {
		g.Go(func() error {
			item := BatchItem{Index: i}
			gen, err := p.Generate(gctx, []*schema.Message{schema.UserMessage(text)}, opts)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
				item.Content = gen.Content
				item.Usage = gen.Usage
				item.WordCount = entity.CountWords(gen.Content)
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{Results: items}
	for _, item := range items {
		if item.Success {
			res.Successful++
			res.TotalWordCount += item.WordCount
		} else {
			res.Failed++
		}
	}
	return res, nil
}
