package memory

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
)

// BuildContext 并行汇总生成上下文：图上下文、上一章、世界状态与语义检索。
// 图上下文失败时返回错误，其余来源失败时降级为空值。
func (s *Service) BuildContext(ctx context.Context, novelID string, chapterNumber int, focusElements []string) (*entity.GenerationContext, error) {
	ctx, span := tracer.Start(ctx, "memory.BuildContext",
		trace.WithAttributes(
			attribute.String("novel_id", novelID),
			attribute.Int("chapter_number", chapterNumber),
		))
	defer span.End()

	out := entity.NewGenerationContext(novelID, chapterNumber, focusElements)

	var (
		graphCtx *entity.GraphContext
		previous *entity.Chapter
		state    *entity.WorldState
		similar  []entity.VectorMatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		graphCtx, err = s.graph.GetContext(gctx, novelID, chapterNumber)
		if err != nil {
			return graphError(err, "failed to load novel context")
		}
		return nil
	})
	if chapterNumber > 1 {
		g.Go(func() error {
			ch, err := s.GetChapter(gctx, novelID, chapterNumber-1)
			if err != nil {
				if !errors.Is(err, apperrors.ErrChapterNotFound) {
					logger.Warn(gctx, "previous chapter unavailable", "novel_id", novelID, "error", err.Error())
				}
				return nil
			}
			previous = ch
			return nil
		})
	}
	g.Go(func() error {
		ws, err := s.GetWorldState(gctx, novelID)
		if err != nil {
			logger.Warn(gctx, "world state unavailable", "novel_id", novelID, "error", err.Error())
			return nil
		}
		state = ws
		return nil
	})
	if query := similarityQuery(focusElements, chapterNumber); query != "" {
		g.Go(func() error {
			exclude := chapterNumber
			similar = s.SemanticSearch(gctx, novelID, query, retrieval.SearchOptions{
				TopK:           s.similarTopK,
				ExcludeChapter: &exclude,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if graphCtx != nil {
		if graphCtx.Novel != nil {
			out.Novel = graphCtx.Novel
		}
		if graphCtx.Characters != nil {
			out.Characters = graphCtx.Characters
		}
		if graphCtx.Locations != nil {
			out.Locations = graphCtx.Locations
		}
		if state == nil && graphCtx.WorldState != nil {
			state = graphCtx.WorldState
		}
	}
	out.WorldState = state.Snapshot()
	out.PreviousChapter = previous
	if similar != nil {
		out.SimilarContent = similar
	}

	span.SetAttributes(
		attribute.Int("characters", len(out.Characters)),
		attribute.Int("similar", len(out.SimilarContent)),
		attribute.Bool("has_previous", out.PreviousChapter != nil),
	)
	return out, nil
}

// similarityQuery 焦点元素后接章节号，没有焦点元素时不检索
func similarityQuery(focus []string, chapterNumber int) string {
	parts := make([]string, 0, len(focus)+1)
	for _, f := range focus {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if chapterNumber > 0 {
		parts = append(parts, "chapter "+strconv.Itoa(chapterNumber))
	}
	return strings.Join(parts, " ")
}
