package entity

import (
	"fmt"
	"strings"
	"time"
)

// ChapterStatus 章节状态
type ChapterStatus string

const (
	ChapterStatusDraft     ChapterStatus = "draft"
	ChapterStatusPublished ChapterStatus = "published"
	ChapterStatusArchived  ChapterStatus = "archived"
)

// Valid 检查章节状态是否合法
func (s ChapterStatus) Valid() bool {
	switch s {
	case ChapterStatusDraft, ChapterStatusPublished, ChapterStatusArchived:
		return true
	}
	return false
}

// Chapter 章节实体，复合键 (NovelID, Number)
type Chapter struct {
	NovelID         string        `json:"novelId"`
	Number          int           `json:"number"`
	Title           string        `json:"title,omitempty"`
	Content         string        `json:"content"`
	Summary         string        `json:"summary,omitempty"`
	WordCount       int           `json:"wordCount"`
	Status          ChapterStatus `json:"status"`
	FocusElements   string        `json:"focusElements,omitempty"`
	Mood            string        `json:"mood,omitempty"`
	StylePreference string        `json:"stylePreference,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// NewChapter 创建新章节
func NewChapter(novelID string, number int) *Chapter {
	now := time.Now().UTC()
	return &Chapter{
		NovelID:   strings.TrimSpace(novelID),
		Number:    number,
		Status:    ChapterStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key 返回章节的复合键
func (c *Chapter) Key() string {
	return ChapterKey(c.NovelID, c.Number)
}

// ChapterKey 生成章节复合键
func ChapterKey(novelID string, number int) string {
	return fmt.Sprintf("%s:%d", novelID, number)
}

// SetContent 设置章节内容并重新计算字数
func (c *Chapter) SetContent(content string) {
	c.Content = content
	c.WordCount = CountWords(content)
	c.UpdatedAt = time.Now().UTC()
}

// Normalize 填充默认值并根据正文修正字数
func (c *Chapter) Normalize() {
	c.NovelID = strings.TrimSpace(c.NovelID)
	if c.Status == "" {
		c.Status = ChapterStatusDraft
	}
	c.WordCount = CountWords(c.Content)
	touch(&c.CreatedAt, &c.UpdatedAt)
}

// CountWords 统计字数：空白分隔的词数，CJK 字符逐字计数
func CountWords(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case r == ' ' || r == '\n' || r == '\t' || r == '\r':
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) || (r >= 0xAC00 && r <= 0xD7AF)
}
