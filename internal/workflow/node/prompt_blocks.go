package node

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"novel-orchestrator/internal/domain/entity"
)

const emptyBlock = "(none)"

// BuildCharactersBlock 角色列表提示块
func BuildCharactersBlock(characters []*entity.Character) string {
	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		if c == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		line := "- " + c.Name
		if d := strings.TrimSpace(c.Description); d != "" {
			line += ": " + d
		}
		if len(c.Traits) > 0 {
			line += " (traits: " + strings.Join(c.Traits, ", ") + ")"
		}
		if len(c.Motivations) > 0 {
			line += " (motivations: " + strings.Join(c.Motivations, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return joinOrEmpty(lines)
}

// BuildLocationsBlock 地点列表提示块
func BuildLocationsBlock(locations []*entity.Location) string {
	lines := make([]string, 0, len(locations))
	for _, l := range locations {
		if l == nil || strings.TrimSpace(l.Name) == "" {
			continue
		}
		line := fmt.Sprintf("- %s [%s]", l.Name, l.Type)
		if d := strings.TrimSpace(l.Description); d != "" {
			line += ": " + d
		}
		lines = append(lines, line)
	}
	return joinOrEmpty(lines)
}

// BuildWorldStateBlock 世界状态提示块，按键排序保证输出稳定
func BuildWorldStateBlock(state map[string]any) string {
	if len(state) == 0 {
		return emptyBlock
	}
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(state[k])
		if err != nil {
			v = []byte(fmt.Sprint(state[k]))
		}
		lines = append(lines, "- "+k+": "+string(v))
	}
	return strings.Join(lines, "\n")
}

// BuildPreviousChapterBlock 上一章提示块，优先使用摘要，否则取正文结尾
func BuildPreviousChapterBlock(ch *entity.Chapter, maxRunes int) string {
	if ch == nil {
		return emptyBlock
	}
	body := strings.TrimSpace(ch.Summary)
	if body == "" {
		body = TailByRunes(strings.TrimSpace(ch.Content), maxRunes)
	}
	header := fmt.Sprintf("Chapter %d", ch.Number)
	if t := strings.TrimSpace(ch.Title); t != "" {
		header += ": " + t
	}
	if body == "" {
		return header
	}
	return header + "\n" + body
}

// BuildSimilarBlock 语义检索片段提示块
func BuildSimilarBlock(matches []entity.VectorMatch, maxRunes int) string {
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- (%.2f) %s", m.Score, TruncateByRunes(content, maxRunes)))
	}
	return joinOrEmpty(lines)
}

// BuildListBlock 字符串列表以逗号连接
func BuildListBlock(items []string) string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return emptyBlock
	}
	return strings.Join(out, "; ")
}

func joinOrEmpty(lines []string) string {
	if len(lines) == 0 {
		return emptyBlock
	}
	return strings.Join(lines, "\n")
}
