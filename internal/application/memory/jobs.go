package memory

import "novel-orchestrator/internal/infrastructure/messaging"

// 任务队列与类型
const (
	QueueIndex = string(messaging.StreamIndex)
	QueueCache = string(messaging.StreamCache)

	JobTypeIndexEntity  = "index.entity"
	JobTypeCacheRefresh = "cache.refresh"
)

// 实体种类
const (
	KindNovel     = "novel"
	KindCharacter = "character"
	KindLocation  = "location"
	KindChapter   = "chapter"
)

// EntityTask 索引与缓存回填任务载荷，处理器从图数据库重新读取实体
type EntityTask struct {
	Kind          string `json:"kind"`
	NovelID       string `json:"novelId"`
	EntityID      string `json:"entityId,omitempty"`
	ChapterNumber int    `json:"chapterNumber,omitempty"`
}

// ScopeNovelID 实现 messaging.NovelScoped
func (t EntityTask) ScopeNovelID() string { return t.NovelID }

func (t EntityTask) cacheKey() string {
	switch t.Kind {
	case KindNovel:
		return novelKey(t.NovelID)
	case KindCharacter:
		return characterKey(t.NovelID, t.EntityID)
	case KindLocation:
		return locationKey(t.NovelID, t.EntityID)
	case KindChapter:
		return chapterKey(t.NovelID, t.ChapterNumber)
	}
	return ""
}
