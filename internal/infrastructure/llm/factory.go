package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"novel-orchestrator/internal/config"
)

// Factory 管理多个提供商实例，按名称惰性创建
type Factory struct {
	config    *config.LLMConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewFactory 创建提供商工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config:    &cfg.LLM,
		providers: make(map[string]Provider),
	}
}

// Register 注册已构建的提供商，覆盖同名配置
func (f *Factory) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.Name()] = p
}

// Get 获取指定名称的提供商，未指定时返回默认提供商
func (f *Factory) Get(ctx context.Context, name string) (Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	p, ok := f.providers[name]
	f.mu.RUnlock()
	if ok {
		return p, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if p, ok = f.providers[name]; ok {
		return p, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	var err error
	switch strings.ToLower(providerCfg.Kind) {
	case "", KindEino:
		p, err = NewEinoProvider(ctx, name, providerCfg)
	case KindOpenAI:
		p, err = NewOpenAIProvider(name, providerCfg)
	default:
		return nil, fmt.Errorf("provider %s has unknown kind %q", name, providerCfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}

	f.providers[name] = p
	return p, nil
}

// Names 返回已配置的提供商名称
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.config.Providers))
	for name := range f.config.Providers {
		names = append(names, name)
	}
	return names
}

func ptrFloat32(f float32) *float32 {
	return &f
}
