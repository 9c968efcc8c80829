// Package chain 组装章节生成链：上下文渲染为提示后调用提供商
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/workflow/node"
	"novel-orchestrator/internal/workflow/prompt"
)

const (
	previousChapterRunes = 1500
	similarPreviewRunes  = 400
	draftPreviewRunes    = 12000
)

// Generator 章节链依赖的生成能力
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message, providerName string, opts llm.GenerateOptions) (*llm.Generation, error)
}

// ChapterInput 单次章节生成输入
type ChapterInput struct {
	Context  *entity.GenerationContext
	Request  *entity.GenerationRequest
	Provider string
	Options  llm.GenerateOptions
}

// ChapterChain 章节生成链
type ChapterChain struct {
	generator Generator
	prompts   *prompt.Registry
}

// NewChapterChain 创建章节生成链
func NewChapterChain(generator Generator, prompts *prompt.Registry) *ChapterChain {
	if prompts == nil {
		prompts = prompt.NewRegistry()
	}
	return &ChapterChain{generator: generator, prompts: prompts}
}

// Draft 生成首稿
func (c *ChapterChain) Draft(ctx context.Context, in *ChapterInput) (*llm.Generation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	msgs, err := c.prompts.Format(ctx, prompt.PromptChapterGenV1, draftVars(in))
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, in, msgs)
}

// Revise 根据评估反馈重写
func (c *ChapterChain) Revise(ctx context.Context, in *ChapterInput, draft string, eval *llm.Evaluation) (*llm.Generation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, fmt.Errorf("evaluation is required for revision")
	}
	vars := reviseVars(in)
	vars["score"] = fmt.Sprintf("%.1f", eval.OverallScore)
	vars["draft"] = node.TruncateByRunes(strings.TrimSpace(draft), draftPreviewRunes)
	vars["strengths"] = node.BuildListBlock(eval.Feedback.Strengths)
	vars["improvements"] = node.BuildListBlock(eval.Feedback.Improvements)
	vars["summary"] = strings.TrimSpace(eval.Feedback.Summary)

	msgs, err := c.prompts.Format(ctx, prompt.PromptChapterRetryV1, vars)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, in, msgs)
}

func (c *ChapterChain) invoke(ctx context.Context, in *ChapterInput, msgs []*schema.Message) (*llm.Generation, error) {
	gen, err := c.generator.Generate(ctx, msgs, in.Provider, in.Options)
	if err != nil {
		return nil, err
	}
	if gen == nil || strings.TrimSpace(gen.Content) == "" {
		return nil, fmt.Errorf("empty llm response")
	}
	return gen, nil
}

func validateInput(in *ChapterInput) error {
	if in == nil || in.Context == nil || in.Request == nil {
		return fmt.Errorf("chapter input is incomplete")
	}
	if in.Context.ChapterNumber <= 0 {
		return fmt.Errorf("chapter number must be positive")
	}
	return nil
}

func draftVars(in *ChapterInput) map[string]any {
	gc := in.Context
	vars := baseVars(in)
	vars["novel_genre"] = orNone(gc.Novel.Genre)
	vars["novel_description"] = orNone(gc.Novel.Description)
	vars["locations"] = node.BuildLocationsBlock(gc.Locations)
	vars["similar_content"] = node.BuildSimilarBlock(gc.SimilarContent, similarPreviewRunes)
	return vars
}

func reviseVars(in *ChapterInput) map[string]any {
	return baseVars(in)
}

func baseVars(in *ChapterInput) map[string]any {
	gc := in.Context
	title := gc.Novel.ID
	if t := strings.TrimSpace(gc.Novel.Title); t != "" {
		title = t
	}
	return map[string]any{
		"novel_title":      title,
		"characters":       node.BuildCharactersBlock(gc.Characters),
		"world_state":      node.BuildWorldStateBlock(gc.WorldState),
		"previous_chapter": node.BuildPreviousChapterBlock(gc.PreviousChapter, previousChapterRunes),
		"chapter_number":   gc.ChapterNumber,
		"focus_elements":   orNone(in.Request.FocusElements),
		"style_preference": orNone(in.Request.StylePreference),
		"mood":             orNone(in.Request.Mood),
	}
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "(none)"
	}
	return s
}
