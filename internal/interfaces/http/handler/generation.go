package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/application/generation"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/interfaces/http/dto"
)

// Orchestrator 生成与摄入编排
type Orchestrator interface {
	Generate(ctx context.Context, req *entity.GenerationRequest) (*generation.GenerationResult, error)
	Upload(ctx context.Context, req *entity.UploadRequest) (*generation.UploadResult, error)
}

// GenerationHandler 章节生成与文档摄入处理器
type GenerationHandler struct {
	orchestrator Orchestrator
}

// NewGenerationHandler 创建处理器
func NewGenerationHandler(orchestrator Orchestrator) *GenerationHandler {
	return &GenerationHandler{orchestrator: orchestrator}
}

// Generate POST /novel-generation
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req entity.GenerationRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.orchestrator.Generate(c.Request.Context(), &req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	if res.Status == generation.StatusAccepted {
		dto.Accepted(c, res)
		return
	}
	dto.Success(c, res)
}

// Upload POST /novel-upload
func (h *GenerationHandler) Upload(c *gin.Context) {
	var req entity.UploadRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.orchestrator.Upload(c.Request.Context(), &req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, res)
}
