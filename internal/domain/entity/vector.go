package entity

// 向量内容类型
const (
	ContentTypeCharacter = "character"
	ContentTypeLocation  = "location"
	ContentTypeChapter   = "chapter"
	ContentTypeSummary   = "summary"
	ContentTypeDocument  = "document"
)

// VectorMetadata 向量附带的元数据
type VectorMetadata struct {
	NovelID       string `json:"novelId"`
	EntityType    string `json:"entityType"`
	EntityID      string `json:"entityId"`
	ContentType   string `json:"contentType"`
	ChapterNumber int    `json:"chapterNumber,omitempty"`
	ChunkIndex    int    `json:"chunkIndex"`
	Content       string `json:"content"`
}

// AsMap 转为通用 map，便于响应输出
func (m VectorMetadata) AsMap() map[string]any {
	return map[string]any{
		"novelId":       m.NovelID,
		"entityType":    m.EntityType,
		"entityId":      m.EntityID,
		"contentType":   m.ContentType,
		"chapterNumber": m.ChapterNumber,
		"chunkIndex":    m.ChunkIndex,
	}
}

// VectorRecord 待写入的向量
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// VectorFilter 向量检索过滤条件
type VectorFilter struct {
	NovelID        string   `json:"novelId"`
	ChapterNumber  *int     `json:"chapterNumber,omitempty"`
	ExcludeChapter *int     `json:"excludeChapter,omitempty"`
	ContentTypes   []string `json:"contentTypes,omitempty"`
}

// VectorQuery 向量检索参数
type VectorQuery struct {
	Vector          []float32
	TopK            int
	Namespace       string
	Filter          VectorFilter
	IncludeMetadata bool
}

// VectorMatch 检索命中
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  string         `json:"content"`
}
