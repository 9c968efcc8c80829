package retrieval

import (
	"strings"

	"novel-orchestrator/internal/domain/entity"
)

// Chunk 按策略切分文本。paragraph 优先在段落边界切分，sentence 仅在句末切分，fixed 按字符硬切。
// 断点只在预算后半段内向前查找，找不到时硬切；相邻分片保留 overlap 个字符的重叠。
func Chunk(text string, strategy entity.ChunkingStrategy, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 || len(runes) <= size {
		return []string{string(runes)}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	out := make([]string, 0, len(runes)/size+1)
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := findBreak(runes, start, end, strategy); cut > 0 {
			end = cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func findBreak(runes []rune, start, end int, strategy entity.ChunkingStrategy) int {
	floor := start + (end-start)/2
	switch strategy {
	case entity.ChunkingFixed:
		return -1
	case entity.ChunkingSentence:
	default:
		for i := end - 1; i > floor; i-- {
			if runes[i] == '\n' && runes[i-1] == '\n' {
				return i + 1
			}
		}
	}
	for i := end - 1; i > floor; i-- {
		if isSentenceTerminator(runes[i]) {
			return i + 1
		}
	}
	return -1
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '\n':
		return true
	}
	return false
}

func preview(s string, max int) string {
	out := strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return out
	}
	r := []rune(out)
	if len(r) <= max {
		return out
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
