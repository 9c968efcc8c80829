// Package prompt 管理内嵌的章节生成与评估提示词模板
package prompt

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识，对应 templates/<id>.system.txt 与 templates/<id>.user.txt
type PromptID string

const (
	PromptChapterGenV1   PromptID = "chapter_gen_v1"
	PromptChapterRetryV1 PromptID = "chapter_retry_v1"
	PromptEvaluateV1     PromptID = "evaluate_v1"
)

// Registry 启动时解析全部内嵌模板，之后只读
type Registry struct {
	templates map[PromptID]einoprompt.ChatTemplate
}

// NewRegistry 加载内嵌模板，缺少 system 或 user 任一半的模板不会注册
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[PromptID]einoprompt.ChatTemplate)}
	parts := make(map[PromptID]map[string]string)

	_ = fs.WalkDir(templatesFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := strings.TrimSuffix(path.Base(p), ".txt")
		id, role, ok := strings.Cut(name, ".")
		if !ok {
			return nil
		}
		body, err := templatesFS.ReadFile(p)
		if err != nil {
			return err
		}
		if parts[PromptID(id)] == nil {
			parts[PromptID(id)] = make(map[string]string, 2)
		}
		parts[PromptID(id)][role] = strings.TrimSpace(string(body))
		return nil
	})

	for id, p := range parts {
		system, okSys := p["system"]
		user, okUser := p["user"]
		if !okSys || !okUser {
			continue
		}
		r.templates[id] = einoprompt.FromMessages(schema.FString,
			schema.SystemMessage(system),
			schema.UserMessage(user),
		)
	}
	return r
}

// IDs 已注册的模板标识，按字典序
func (r *Registry) IDs() []PromptID {
	ids := make([]PromptID, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ChatTemplate 获取模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}
	tpl, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	return tpl, nil
}

// Format 渲染指定模板
func (r *Registry) Format(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}
