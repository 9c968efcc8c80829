package entity

// ChunkingStrategy 服务端切分策略
type ChunkingStrategy string

const (
	ChunkingParagraph ChunkingStrategy = "paragraph"
	ChunkingSentence  ChunkingStrategy = "sentence"
	ChunkingFixed     ChunkingStrategy = "fixed"
)

// UploadMode 文档摄入模式
type UploadMode string

const (
	UploadModeChunks  UploadMode = "chunks"
	UploadModeContent UploadMode = "content"
	UploadModeFileURL UploadMode = "fileUrl"
)

// DocumentChunk 预切分的文档片段
type DocumentChunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UploadRequest 文档摄入请求
type UploadRequest struct {
	NovelID          string           `json:"novelId"`
	Content          string           `json:"content,omitempty"`
	FileURL          string           `json:"fileUrl,omitempty"`
	Chunks           []DocumentChunk  `json:"chunks,omitempty"`
	ChunkingStrategy ChunkingStrategy `json:"chunkingStrategy,omitempty"`
	ChunkSize        int              `json:"chunkSize,omitempty"`
	Overlap          int              `json:"overlap,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	RequestID        string           `json:"requestId,omitempty"`
	CallbackURL      string           `json:"callbackUrl,omitempty"`
}

// Mode 按优先级判定摄入模式：预切分 > 原文 > 远程文件
func (r *UploadRequest) Mode() UploadMode {
	switch {
	case len(r.Chunks) > 0:
		return UploadModeChunks
	case r.Content != "":
		return UploadModeContent
	case r.FileURL != "":
		return UploadModeFileURL
	}
	return ""
}
