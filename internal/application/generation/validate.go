package generation

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
)

const minNovelIDLength = 3

// ValidateGeneration 校验生成请求，失败时不应产生任何外部调用
func ValidateGeneration(req *entity.GenerationRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	req.NovelID = strings.TrimSpace(req.NovelID)
	if utf8.RuneCountInString(req.NovelID) < minNovelIDLength {
		return apperrors.Validation("novelId must be at least %d characters", minNovelIDLength)
	}
	if req.ChapterNumber <= 0 {
		return apperrors.Validation("chapterNumber must be a positive integer")
	}
	if strings.TrimSpace(req.FocusElements) == "" {
		return apperrors.Validation("focusElements is required")
	}
	if strings.TrimSpace(req.StylePreference) == "" {
		return apperrors.Validation("stylePreference is required")
	}
	if strings.TrimSpace(req.Mood) == "" {
		return apperrors.Validation("mood is required")
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return apperrors.Validation("callbackUrl is required")
	}
	if !isHTTPURL(req.CallbackURL) {
		return apperrors.Validation("callbackUrl must be an absolute http(s) url")
	}
	return nil
}

// ValidateUpload 校验摄入请求并填充切分默认值
func ValidateUpload(req *entity.UploadRequest, limits config.UploadConfig) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	req.NovelID = strings.TrimSpace(req.NovelID)
	if req.NovelID == "" {
		return apperrors.Validation("novelId is required")
	}

	switch req.Mode() {
	case entity.UploadModeChunks:
		if limits.MaxChunks > 0 && len(req.Chunks) > limits.MaxChunks {
			return apperrors.Validation("too many chunks: %d (max %d)", len(req.Chunks), limits.MaxChunks)
		}
		nonEmpty := 0
		for i, c := range req.Chunks {
			n := utf8.RuneCountInString(c.Content)
			if limits.MaxChunkSize > 0 && n > limits.MaxChunkSize {
				return apperrors.Validation("chunk %d exceeds %d characters", i, limits.MaxChunkSize)
			}
			if strings.TrimSpace(c.Content) != "" {
				nonEmpty++
			}
		}
		if nonEmpty == 0 {
			return apperrors.Validation("chunks must contain non-empty content")
		}
	case entity.UploadModeContent:
		if limits.MaxContentBytes > 0 && len(req.Content) > limits.MaxContentBytes {
			return apperrors.ErrPayloadTooLarge.WithDetail("content exceeds upload limit")
		}
	case entity.UploadModeFileURL:
		if !isHTTPURL(req.FileURL) {
			return apperrors.Validation("fileUrl must be an absolute http(s) url")
		}
	default:
		return apperrors.Validation("one of content, fileUrl or chunks is required")
	}

	if req.ChunkingStrategy == "" {
		req.ChunkingStrategy = entity.ChunkingParagraph
	}
	switch req.ChunkingStrategy {
	case entity.ChunkingParagraph, entity.ChunkingSentence, entity.ChunkingFixed:
	default:
		return apperrors.Validation("unknown chunkingStrategy %q", req.ChunkingStrategy)
	}
	if req.ChunkSize < 0 || req.Overlap < 0 {
		return apperrors.Validation("chunkSize and overlap must not be negative")
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = limits.DefaultChunkSize
	}
	if req.Overlap == 0 && limits.DefaultOverlap < req.ChunkSize {
		req.Overlap = limits.DefaultOverlap
	}
	if limits.MaxChunkSize > 0 && req.ChunkSize > limits.MaxChunkSize {
		return apperrors.Validation("chunkSize must not exceed %d", limits.MaxChunkSize)
	}
	if req.Mode() != entity.UploadModeChunks && req.ChunkSize <= 0 {
		return apperrors.Validation("chunkSize must be positive")
	}
	if req.ChunkSize > 0 && req.Overlap >= req.ChunkSize {
		return apperrors.Validation("overlap must be smaller than chunkSize")
	}
	if req.CallbackURL != "" && !isHTTPURL(req.CallbackURL) {
		return apperrors.Validation("callbackUrl must be an absolute http(s) url")
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SplitFocus 将逗号或换行分隔的关注点拆分为列表
func SplitFocus(focus string) []string {
	parts := strings.FieldsFunc(focus, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';' || r == '，'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
