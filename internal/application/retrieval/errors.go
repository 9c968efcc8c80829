package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索/索引能力未配置（向量库或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrEmbeddingFailed 向量化失败或结果数量不匹配
	ErrEmbeddingFailed = errors.New("embedding failed")
)
