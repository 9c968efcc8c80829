package neo4j

import (
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"novel-orchestrator/internal/domain/entity"
)

// 属性转换：时间以 Unix 毫秒存储，嵌套对象以 JSON 字符串存储

func novelProps(n *entity.Novel) map[string]any {
	return map[string]any{
		"id":          n.ID,
		"title":       n.Title,
		"description": n.Description,
		"genre":       n.Genre,
		"author":      n.Author,
		"status":      string(n.Status),
		"createdAt":   toMillis(n.CreatedAt),
		"updatedAt":   toMillis(n.UpdatedAt),
	}
}

func characterProps(c *entity.Character) (map[string]any, error) {
	origin, err := encodeJSON(c.Origin)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":            c.ID,
		"novelId":       c.NovelID,
		"name":          c.Name,
		"description":   c.Description,
		"traits":        c.Traits,
		"motivations":   c.Motivations,
		"powers":        c.Powers,
		"fears":         c.Fears,
		"hiddenDesires": c.HiddenDesires,
		"affiliations":  c.Affiliations,
		"trivia":        c.Trivia,
		"originJson":    origin,
		"createdAt":     toMillis(c.CreatedAt),
		"updatedAt":     toMillis(c.UpdatedAt),
	}, nil
}

func locationProps(l *entity.Location) map[string]any {
	return map[string]any{
		"id":          l.ID,
		"novelId":     l.NovelID,
		"name":        l.Name,
		"description": l.Description,
		"geography":   l.Geography,
		"culture":     l.Culture,
		"type":        string(l.Type),
		"createdAt":   toMillis(l.CreatedAt),
		"updatedAt":   toMillis(l.UpdatedAt),
	}
}

func chapterProps(c *entity.Chapter) map[string]any {
	return map[string]any{
		"novelId":         c.NovelID,
		"number":          int64(c.Number),
		"title":           c.Title,
		"content":         c.Content,
		"summary":         c.Summary,
		"wordCount":       int64(c.WordCount),
		"status":          string(c.Status),
		"focusElements":   c.FocusElements,
		"mood":            c.Mood,
		"stylePreference": c.StylePreference,
		"createdAt":       toMillis(c.CreatedAt),
		"updatedAt":       toMillis(c.UpdatedAt),
	}
}

func novelFromProps(p map[string]any) *entity.Novel {
	return &entity.Novel{
		ID:          toString(p["id"]),
		Title:       toString(p["title"]),
		Description: toString(p["description"]),
		Genre:       toString(p["genre"]),
		Author:      toString(p["author"]),
		Status:      entity.NovelStatus(toString(p["status"])),
		CreatedAt:   toTime(p["createdAt"]),
		UpdatedAt:   toTime(p["updatedAt"]),
	}
}

func characterFromProps(p map[string]any) *entity.Character {
	c := &entity.Character{
		ID:            toString(p["id"]),
		NovelID:       toString(p["novelId"]),
		Name:          toString(p["name"]),
		Description:   toString(p["description"]),
		Traits:        toStringSlice(p["traits"]),
		Motivations:   toStringSlice(p["motivations"]),
		Powers:        toStringSlice(p["powers"]),
		Fears:         toStringSlice(p["fears"]),
		HiddenDesires: toStringSlice(p["hiddenDesires"]),
		Affiliations:  toStringSlice(p["affiliations"]),
		Trivia:        toStringSlice(p["trivia"]),
		Origin:        decodeJSONMap(p["originJson"]),
		CreatedAt:     toTime(p["createdAt"]),
		UpdatedAt:     toTime(p["updatedAt"]),
	}
	return c
}

func locationFromProps(p map[string]any) *entity.Location {
	return &entity.Location{
		ID:          toString(p["id"]),
		NovelID:     toString(p["novelId"]),
		Name:        toString(p["name"]),
		Description: toString(p["description"]),
		Geography:   toString(p["geography"]),
		Culture:     toString(p["culture"]),
		Type:        entity.LocationType(toString(p["type"])),
		CreatedAt:   toTime(p["createdAt"]),
		UpdatedAt:   toTime(p["updatedAt"]),
	}
}

func chapterFromProps(p map[string]any) *entity.Chapter {
	return &entity.Chapter{
		NovelID:         toString(p["novelId"]),
		Number:          toInt(p["number"]),
		Title:           toString(p["title"]),
		Content:         toString(p["content"]),
		Summary:         toString(p["summary"]),
		WordCount:       toInt(p["wordCount"]),
		Status:          entity.ChapterStatus(toString(p["status"])),
		FocusElements:   toString(p["focusElements"]),
		Mood:            toString(p["mood"]),
		StylePreference: toString(p["stylePreference"]),
		CreatedAt:       toTime(p["createdAt"]),
		UpdatedAt:       toTime(p["updatedAt"]),
	}
}

func worldStateFromProps(p map[string]any) *entity.WorldState {
	return &entity.WorldState{
		NovelID:   toString(p["novelId"]),
		State:     decodeJSONMap(p["stateJson"]),
		UpdatedAt: toTime(p["updatedAt"]),
	}
}

// nodeProps 从记录中取出节点属性
func nodeProps(record *neo4j.Record, key string) (map[string]any, bool) {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil, false
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return nil, false
	}
	return node.Props, true
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func toInt(value any) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toTime(value any) time.Time {
	switch v := value.(type) {
	case int64:
		if v == 0 {
			return time.Time{}
		}
		return time.UnixMilli(v).UTC()
	case time.Time:
		return v.UTC()
	}
	return time.Time{}
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSONMap(value any) map[string]any {
	out := map[string]any{}
	s := toString(value)
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{}
	}
	return out
}
