package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/workflow/chain"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

type draft struct {
	content string
	eval    *llm.Evaluation
}

// generateLocally 上下文 → 起草 → 评估 → 低分带反馈重写 → 保存最佳稿
func (o *Orchestrator) generateLocally(ctx context.Context, req *entity.GenerationRequest) (*GenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	gctx, err := o.memory.BuildContext(ctx, req.NovelID, req.ChapterNumber, SplitFocus(req.FocusElements))
	if err != nil {
		return nil, err
	}
	in := &chain.ChapterInput{Context: gctx, Request: req, Provider: req.Provider}

	gen, err := o.drafter.Draft(ctx, in)
	if err != nil {
		return nil, llmError(err)
	}
	best := draft{content: gen.Content, eval: o.evaluate(ctx, gen.Content)}
	attempts := 1

	for attempts < o.maxAttempts && best.eval.OverallScore < o.acceptScore {
		logger.Info(ctx, "draft below acceptance threshold, revising",
			"attempt", attempts, "score", best.eval.OverallScore, "threshold", o.acceptScore)
		gen, err := o.drafter.Revise(ctx, in, best.content, best.eval)
		if err != nil {
			logger.Warn(ctx, "revision failed, keeping best draft", "attempt", attempts+1, "error", err.Error())
			break
		}
		attempts++
		candidate := draft{content: gen.Content, eval: o.evaluate(ctx, gen.Content)}
		if candidate.eval.OverallScore >= best.eval.OverallScore {
			best = candidate
		}
	}
	metrics.GenerationAttempts.Observe(float64(attempts))

	ch := entity.NewChapter(req.NovelID, req.ChapterNumber)
	ch.Title = fmt.Sprintf("Chapter %d", req.ChapterNumber)
	ch.FocusElements = req.FocusElements
	ch.Mood = req.Mood
	ch.StylePreference = req.StylePreference
	ch.SetContent(best.content)
	metrics.ChapterWordCount.Observe(float64(ch.WordCount))

	saved, jobIDs, err := o.memory.SaveChapter(ctx, ch)
	if err != nil {
		return nil, err
	}
	if _, err := o.memory.UpdateWorldState(ctx, req.NovelID, map[string]any{
		"lastChapterNumber": req.ChapterNumber,
		"lastGeneratedAt":   time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		logger.Warn(ctx, "world state counter update failed", "error", err.Error())
	}

	return &GenerationResult{
		RequestID:     req.RequestID,
		NovelID:       req.NovelID,
		ChapterNumber: req.ChapterNumber,
		Mode:          ModeLocal,
		Status:        StatusCompleted,
		Chapter:       saved,
		Evaluation:    best.eval,
		Attempts:      attempts,
		JobIDs:        jobIDs,
	}, nil
}

// evaluate 评估调用失败时按中性分处理
func (o *Orchestrator) evaluate(ctx context.Context, content string) *llm.Evaluation {
	eval, err := o.evaluator.Evaluate(ctx, content, o.criteria, "")
	if err != nil {
		logger.Warn(ctx, "evaluation failed, using neutral scores", "error", err.Error())
		eval = llm.NeutralEvaluation(o.criteria)
		eval.WordCount = entity.CountWords(content)
		eval.ReadabilityLevel = llm.EstimateReadability(content)
	}
	return eval
}

func llmError(err error) error {
	if errors.Is(err, llm.ErrUnknownProvider) {
		return apperrors.New(apperrors.CodeUnknownProvider, "unknown llm provider").WithError(err)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.ErrLLMCallFailed.WithError(err)
}
