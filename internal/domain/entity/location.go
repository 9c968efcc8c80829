package entity

import (
	"strings"
	"time"
)

// LocationType 地点类型
type LocationType string

const (
	LocationTypeCity     LocationType = "city"
	LocationTypeCountry  LocationType = "country"
	LocationTypeRegion   LocationType = "region"
	LocationTypeLandmark LocationType = "landmark"
	LocationTypeBuilding LocationType = "building"
)

// Valid 检查地点类型是否合法
func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeCity, LocationTypeCountry, LocationTypeRegion, LocationTypeLandmark, LocationTypeBuilding:
		return true
	}
	return false
}

// Location 地点实体，通过 HAS_LOCATION 归属于一部小说
type Location struct {
	ID          string       `json:"id"`
	NovelID     string       `json:"novelId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Geography   string       `json:"geography,omitempty"`
	Culture     string       `json:"culture,omitempty"`
	Type        LocationType `json:"type"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Normalize 填充默认值
func (l *Location) Normalize() {
	l.ID = strings.TrimSpace(l.ID)
	l.NovelID = strings.TrimSpace(l.NovelID)
	if l.Type == "" {
		l.Type = LocationTypeRegion
	}
	touch(&l.CreatedAt, &l.UpdatedAt)
}

// EmbeddingText 返回用于生成向量的文本
func (l *Location) EmbeddingText() string {
	parts := []string{l.Name}
	for _, s := range []string{l.Description, l.Geography, l.Culture} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
