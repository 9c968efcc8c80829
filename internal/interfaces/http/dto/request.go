package dto

import (
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/infrastructure/llm"
)

// WorldStatePatchRequest 世界状态浅合并补丁
type WorldStatePatchRequest struct {
	State map[string]any `json:"state" binding:"required"`
}

// SemanticSearchRequest 语义检索请求
type SemanticSearchRequest struct {
	Query          string   `json:"query" binding:"required"`
	TopK           int      `json:"topK"`
	ChapterNumber  *int     `json:"chapterNumber,omitempty"`
	ExcludeChapter *int     `json:"excludeChapter,omitempty"`
	ContentTypes   []string `json:"contentTypes,omitempty"`
}

// Options 转为检索选项
func (r *SemanticSearchRequest) Options() retrieval.SearchOptions {
	return retrieval.SearchOptions{
		TopK:           r.TopK,
		ChapterNumber:  r.ChapterNumber,
		ExcludeChapter: r.ExcludeChapter,
		ContentTypes:   r.ContentTypes,
	}
}

// BatchGenerateRequest 批量生成请求
type BatchGenerateRequest struct {
	Prompts     []string `json:"prompts" binding:"required"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// Options 转为生成参数
func (r *BatchGenerateRequest) Options() llm.GenerateOptions {
	return llm.GenerateOptions{Model: r.Model, Temperature: r.Temperature, MaxTokens: r.MaxTokens}
}

// EvaluateRequest 评估请求
type EvaluateRequest struct {
	Text     string   `json:"text" binding:"required"`
	Criteria []string `json:"criteria,omitempty"`
	Provider string   `json:"provider,omitempty"`
}
