package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/application/generation"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
)

const defaultChapterListLimit = 50

// MemoryService 记忆层读写
type MemoryService interface {
	CreateNovel(ctx context.Context, n *entity.Novel) (*entity.Novel, []string, error)
	CreateCharacter(ctx context.Context, c *entity.Character) (*entity.Character, []string, error)
	CreateLocation(ctx context.Context, l *entity.Location) (*entity.Location, []string, error)
	SaveChapter(ctx context.Context, ch *entity.Chapter) (*entity.Chapter, []string, error)
	UpdateWorldState(ctx context.Context, novelID string, patch map[string]any) (*entity.WorldState, error)

	GetNovel(ctx context.Context, novelID string) (*entity.Novel, error)
	GetCharacter(ctx context.Context, novelID, characterID string) (*entity.Character, error)
	GetLocation(ctx context.Context, novelID, locationID string) (*entity.Location, error)
	GetChapter(ctx context.Context, novelID string, number int) (*entity.Chapter, error)
	GetWorldState(ctx context.Context, novelID string) (*entity.WorldState, error)
	ChapterSequence(ctx context.Context, novelID string, limit int) ([]*entity.Chapter, error)
	BuildContext(ctx context.Context, novelID string, chapterNumber int, focusElements []string) (*entity.GenerationContext, error)
	SearchEntities(ctx context.Context, novelID, text string, types []string) ([]entity.EntityMatch, error)
	SemanticSearch(ctx context.Context, novelID, query string, opts retrieval.SearchOptions) []entity.VectorMatch
	JobStatus(ctx context.Context, jobID string) (*entity.Job, error)
}

// NovelHandler 小说记忆层处理器
type NovelHandler struct {
	memory MemoryService
}

// NewNovelHandler 创建处理器
func NewNovelHandler(memory MemoryService) *NovelHandler {
	return &NovelHandler{memory: memory}
}

// CreateNovel POST /v1/novels
func (h *NovelHandler) CreateNovel(c *gin.Context) {
	var n entity.Novel
	if !bindJSON(c, &n) {
		return
	}
	saved, jobs, err := h.memory.CreateNovel(c.Request.Context(), &n)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.NewWriteResult(saved, jobs))
}

// GetNovel GET /v1/novels/:novelId
func (h *NovelHandler) GetNovel(c *gin.Context) {
	n, err := h.memory.GetNovel(c.Request.Context(), c.Param("novelId"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, n)
}

// CreateCharacter POST /v1/novels/:novelId/characters
func (h *NovelHandler) CreateCharacter(c *gin.Context) {
	var ch entity.Character
	if !bindJSON(c, &ch) {
		return
	}
	ch.NovelID = c.Param("novelId")
	saved, jobs, err := h.memory.CreateCharacter(c.Request.Context(), &ch)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.NewWriteResult(saved, jobs))
}

// GetCharacter GET /v1/novels/:novelId/characters/:characterId
func (h *NovelHandler) GetCharacter(c *gin.Context) {
	ch, err := h.memory.GetCharacter(c.Request.Context(), c.Param("novelId"), c.Param("characterId"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, ch)
}

// CreateLocation POST /v1/novels/:novelId/locations
func (h *NovelHandler) CreateLocation(c *gin.Context) {
	var l entity.Location
	if !bindJSON(c, &l) {
		return
	}
	l.NovelID = c.Param("novelId")
	saved, jobs, err := h.memory.CreateLocation(c.Request.Context(), &l)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.NewWriteResult(saved, jobs))
}

// GetLocation GET /v1/novels/:novelId/locations/:locationId
func (h *NovelHandler) GetLocation(c *gin.Context) {
	l, err := h.memory.GetLocation(c.Request.Context(), c.Param("novelId"), c.Param("locationId"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, l)
}

// SaveChapter PUT /v1/novels/:novelId/chapters/:number
func (h *NovelHandler) SaveChapter(c *gin.Context) {
	number, ok := chapterNumberParam(c)
	if !ok {
		return
	}
	var ch entity.Chapter
	if !bindJSON(c, &ch) {
		return
	}
	ch.NovelID = c.Param("novelId")
	ch.Number = number
	saved, jobs, err := h.memory.SaveChapter(c.Request.Context(), &ch)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.NewWriteResult(saved, jobs))
}

// GetChapter GET /v1/novels/:novelId/chapters/:number
func (h *NovelHandler) GetChapter(c *gin.Context) {
	number, ok := chapterNumberParam(c)
	if !ok {
		return
	}
	ch, err := h.memory.GetChapter(c.Request.Context(), c.Param("novelId"), number)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, ch)
}

// ListChapters GET /v1/novels/:novelId/chapters?limit=
func (h *NovelHandler) ListChapters(c *gin.Context) {
	chapters, err := h.memory.ChapterSequence(c.Request.Context(), c.Param("novelId"), queryInt(c, "limit", defaultChapterListLimit))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, gin.H{"chapters": chapters, "total": len(chapters)})
}

// PatchWorldState PATCH /v1/novels/:novelId/world-state
func (h *NovelHandler) PatchWorldState(c *gin.Context) {
	var req dto.WorldStatePatchRequest
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.memory.UpdateWorldState(c.Request.Context(), c.Param("novelId"), req.State)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, ws)
}

// GetWorldState GET /v1/novels/:novelId/world-state
func (h *NovelHandler) GetWorldState(c *gin.Context) {
	ws, err := h.memory.GetWorldState(c.Request.Context(), c.Param("novelId"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, ws)
}

// GetContext GET /v1/novels/:novelId/context?chapter=&focus=
func (h *NovelHandler) GetContext(c *gin.Context) {
	chapter := queryInt(c, "chapter", 0)
	if chapter <= 0 {
		dto.Fail(c, apperrors.Validation("chapter must be a positive integer"))
		return
	}
	gctx, err := h.memory.BuildContext(c.Request.Context(), c.Param("novelId"), chapter, generation.SplitFocus(c.Query("focus")))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, gctx)
}

// SearchEntities GET /v1/novels/:novelId/search?q=&types=
func (h *NovelHandler) SearchEntities(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		dto.Fail(c, apperrors.Validation("q is required"))
		return
	}
	var types []string
	if raw := c.Query("types"); raw != "" {
		types = generation.SplitFocus(raw)
	}
	matches, err := h.memory.SearchEntities(c.Request.Context(), c.Param("novelId"), q, types)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, gin.H{"matches": matches, "total": len(matches)})
}

// SemanticSearch POST /v1/novels/:novelId/semantic-search
func (h *NovelHandler) SemanticSearch(c *gin.Context) {
	var req dto.SemanticSearchRequest
	if !bindJSON(c, &req) {
		return
	}
	matches := h.memory.SemanticSearch(c.Request.Context(), c.Param("novelId"), req.Query, req.Options())
	dto.Success(c, gin.H{"matches": matches, "total": len(matches)})
}

// JobStatus GET /v1/jobs/:jobId
func (h *NovelHandler) JobStatus(c *gin.Context) {
	job, err := h.memory.JobStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, job)
}
