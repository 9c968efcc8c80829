package entity

import (
	"maps"
	"time"
)

// WorldState 小说的叙事状态，每部小说一个
type WorldState struct {
	NovelID   string         `json:"novelId"`
	State     map[string]any `json:"state"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NewWorldState 创建空世界状态
func NewWorldState(novelID string) *WorldState {
	return &WorldState{NovelID: novelID, State: map[string]any{}, UpdatedAt: time.Now().UTC()}
}

// Merge 将 patch 浅覆盖到当前状态，后写者胜
func (w *WorldState) Merge(patch map[string]any) {
	if w.State == nil {
		w.State = make(map[string]any, len(patch))
	}
	maps.Copy(w.State, patch)
	w.UpdatedAt = time.Now().UTC()
}

// Snapshot 返回状态的浅拷贝，永不为 nil
func (w *WorldState) Snapshot() map[string]any {
	if w == nil || w.State == nil {
		return map[string]any{}
	}
	return maps.Clone(w.State)
}
