package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
)

// AIClient AI 提供商客户端能力
type AIClient interface {
	BatchGenerate(ctx context.Context, prompts []string, providerName string, opts llm.GenerateOptions) (*llm.BatchResult, error)
	Evaluate(ctx context.Context, text string, criteria []string, providerName string) (*llm.Evaluation, error)
}

// AIHandler 直接调用 AI 提供商的处理器
type AIHandler struct {
	client AIClient
}

// NewAIHandler 创建处理器
func NewAIHandler(client AIClient) *AIHandler {
	return &AIHandler{client: client}
}

// BatchGenerate POST /v1/ai/generate/batch
func (h *AIHandler) BatchGenerate(c *gin.Context) {
	var req dto.BatchGenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.client.BatchGenerate(c.Request.Context(), req.Prompts, req.Provider, req.Options())
	if err != nil {
		dto.Fail(c, aiError(err))
		return
	}
	dto.Success(c, res)
}

// Evaluate POST /v1/ai/evaluate
func (h *AIHandler) Evaluate(c *gin.Context) {
	var req dto.EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}
	eval, err := h.client.Evaluate(c.Request.Context(), req.Text, req.Criteria, req.Provider)
	if err != nil {
		dto.Fail(c, aiError(err))
		return
	}
	dto.Success(c, eval)
}

func aiError(err error) error {
	switch {
	case errors.Is(err, llm.ErrEmptyBatch), errors.Is(err, llm.ErrBatchTooLarge):
		return apperrors.Validation("%v", err)
	case errors.Is(err, llm.ErrUnknownProvider):
		return apperrors.New(apperrors.CodeUnknownProvider, "unknown llm provider").WithError(err)
	case apperrors.IsAppError(err):
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeLLMProviderError, "llm provider call failed")
}
