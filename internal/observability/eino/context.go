package eino

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyPurpose  llmCtxKey = "llm_purpose"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

// WithPurpose 标记本次调用的用途（generate / evaluate / embed）
func WithPurpose(ctx context.Context, purpose string) context.Context {
	p := strings.TrimSpace(purpose)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyPurpose, p)
}

// WithProvider 标记提供商名称
func WithProvider(ctx context.Context, provider string) context.Context {
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

// WithPurposeProvider 同时标记用途与提供商
func WithPurposeProvider(ctx context.Context, purpose, provider string) context.Context {
	return WithProvider(WithPurpose(ctx, purpose), provider)
}

// PurposeFromContext 读取用途，缺省为 unknown
func PurposeFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyPurpose)
}

// ProviderFromContext 读取提供商，缺省为 unknown
func ProviderFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyProvider)
}

func valueOrUnknown(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
