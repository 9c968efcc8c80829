package entity

import "time"

// GenerationRequest 单次章节生成请求，仅在一次编排过程中存在
type GenerationRequest struct {
	NovelID         string    `json:"novelId"`
	ChapterNumber   int       `json:"chapterNumber"`
	FocusElements   string    `json:"focusElements"`
	StylePreference string    `json:"stylePreference"`
	Mood            string    `json:"mood"`
	RequestID       string    `json:"requestId,omitempty"`
	CallbackURL     string    `json:"callbackUrl"`
	Provider        string    `json:"provider,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// GenerationContext 生成所需的聚合上下文，所有字段均有显式值
type GenerationContext struct {
	Novel           *Novel         `json:"novel"`
	Characters      []*Character   `json:"characters"`
	Locations       []*Location    `json:"locations"`
	WorldState      map[string]any `json:"worldState"`
	PreviousChapter *Chapter       `json:"previousChapter"`
	SimilarContent  []VectorMatch  `json:"similarContent"`
	FocusElements   []string       `json:"focusElements"`
	ChapterNumber   int            `json:"chapterNumber"`
	Timestamp       time.Time      `json:"timestamp"`
}

// NewGenerationContext 创建形态完整的空上下文
func NewGenerationContext(novelID string, chapterNumber int, focus []string) *GenerationContext {
	if focus == nil {
		focus = []string{}
	}
	return &GenerationContext{
		Novel:          &Novel{ID: novelID},
		Characters:     []*Character{},
		Locations:      []*Location{},
		WorldState:     map[string]any{},
		SimilarContent: []VectorMatch{},
		FocusElements:  focus,
		ChapterNumber:  chapterNumber,
		Timestamp:      time.Now().UTC(),
	}
}

// GraphContext 图数据库返回的小说上下文
type GraphContext struct {
	Novel      *Novel       `json:"novel"`
	Characters []*Character `json:"characters"`
	Locations  []*Location  `json:"locations"`
	Chapters   []*Chapter   `json:"chapters"`
	WorldState *WorldState  `json:"worldState"`
}

// EntityMatch 实体文本搜索结果
type EntityMatch struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
