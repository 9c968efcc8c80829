// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// NovelStatus 小说状态
type NovelStatus string

const (
	NovelStatusActive    NovelStatus = "active"
	NovelStatusCompleted NovelStatus = "completed"
	NovelStatusPaused    NovelStatus = "paused"
)

// Valid 检查状态是否合法
func (s NovelStatus) Valid() bool {
	switch s {
	case NovelStatusActive, NovelStatusCompleted, NovelStatusPaused:
		return true
	}
	return false
}

// Novel 小说实体，权威副本位于图数据库
type Novel struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Genre       string      `json:"genre,omitempty"`
	Author      string      `json:"author,omitempty"`
	Status      NovelStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// NewNovel 创建新小说
func NewNovel(id, title string) *Novel {
	now := time.Now().UTC()
	return &Novel{
		ID:        strings.TrimSpace(id),
		Title:     title,
		Status:    NovelStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Normalize 填充默认值
func (n *Novel) Normalize() {
	n.ID = strings.TrimSpace(n.ID)
	if n.Status == "" {
		n.Status = NovelStatusActive
	}
	touch(&n.CreatedAt, &n.UpdatedAt)
}

// touch 设置创建时间（若为空）并刷新更新时间
func touch(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
