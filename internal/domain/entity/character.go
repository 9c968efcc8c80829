package entity

import (
	"strings"
	"time"
)

// Character 角色实体，通过 HAS_CHARACTER 归属于一部小说
type Character struct {
	ID            string         `json:"id"`
	NovelID       string         `json:"novelId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Traits        []string       `json:"traits"`
	Motivations   []string       `json:"motivations"`
	Powers        []string       `json:"powers"`
	Fears         []string       `json:"fears"`
	HiddenDesires []string       `json:"hiddenDesires"`
	Origin        map[string]any `json:"origin"`
	Affiliations  []string       `json:"affiliations"`
	Trivia        []string       `json:"trivia"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Normalize 将空列表替换为空切片，保证序列化形态稳定
func (c *Character) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.NovelID = strings.TrimSpace(c.NovelID)
	c.Traits = nonNil(c.Traits)
	c.Motivations = nonNil(c.Motivations)
	c.Powers = nonNil(c.Powers)
	c.Fears = nonNil(c.Fears)
	c.HiddenDesires = nonNil(c.HiddenDesires)
	c.Affiliations = nonNil(c.Affiliations)
	c.Trivia = nonNil(c.Trivia)
	if c.Origin == nil {
		c.Origin = map[string]any{}
	}
	touch(&c.CreatedAt, &c.UpdatedAt)
}

// EmbeddingText 返回用于生成向量的文本
func (c *Character) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Description != "" {
		b.WriteString(": ")
		b.WriteString(c.Description)
	}
	appendList(&b, "Traits", c.Traits)
	appendList(&b, "Motivations", c.Motivations)
	appendList(&b, "Powers", c.Powers)
	appendList(&b, "Fears", c.Fears)
	appendList(&b, "Affiliations", c.Affiliations)
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func appendList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.Join(items, ", "))
}
