package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject 从模型输出中取出第一个合法的 JSON 对象或数组，找不到时返回去空白的原文
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(stripCodeFence(s))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		end := matchingClose(raw, i)
		if end < 0 {
			continue
		}
		if candidate := raw[i : end+1]; json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return strings.TrimSpace(s)
}

// stripCodeFence 去掉 ```json ... ``` 包裹
func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// matchingClose 返回与 open 处括号配对的下标，跳过字符串字面量
func matchingClose(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
