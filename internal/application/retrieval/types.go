package retrieval

// SearchOptions 语义检索选项
type SearchOptions struct {
	TopK           int      `json:"topK"`
	ChapterNumber  *int     `json:"chapterNumber,omitempty"`
	ExcludeChapter *int     `json:"excludeChapter,omitempty"`
	ContentTypes   []string `json:"contentTypes,omitempty"`
}

// DocumentInput 待索引的文档分片
type DocumentInput struct {
	NovelID    string
	DocumentID string
	Chunks     []string
}

const (
	defaultTopK = 5
	maxTopK     = 50
)
