package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"novel-orchestrator/pkg/metrics"
)

func TestContextValues(t *testing.T) {
	ctx := WithPurposeProvider(context.Background(), "evaluate", "openai")
	assert.Equal(t, "evaluate", PurposeFromContext(ctx))
	assert.Equal(t, "openai", ProviderFromContext(ctx))

	ctx = WithPurpose(context.Background(), "  ")
	assert.Equal(t, "unknown", PurposeFromContext(ctx))
	assert.Equal(t, "unknown", ProviderFromContext(ctx))
}

func TestChatModelHandler_RecordsTokens(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := WithProvider(context.Background(), "test-provider")

	before := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("test-provider", "m1", "completion"))
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m1"}})
	assert.NotNil(t, ctx.Value(startTimeKey{}))

	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Message:    schema.AssistantMessage("ok", nil),
		Config:     &model.Config{Model: "m1"},
		TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 32, TotalTokens: 42},
	})
	after := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("test-provider", "m1", "completion"))
	assert.Equal(t, 32.0, after-before)
}

func TestChatModelHandler_Error(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := WithProvider(context.Background(), "err-provider")
	ctx = h.OnStart(ctx, nil, nil)
	h.OnError(ctx, nil, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("err-provider", "", "error")))
}

func TestElapsedSeconds_NoStart(t *testing.T) {
	assert.Equal(t, 0.0, elapsedSeconds(context.Background()))
	ctx := context.WithValue(context.Background(), startTimeKey{}, time.Now().Add(-time.Second))
	assert.GreaterOrEqual(t, elapsedSeconds(ctx), 1.0)
}

func TestInitRegistersOnce(t *testing.T) {
	assert.NotNil(t, Handler())
	Init()
	Init()
	assert.True(t, Registered())
}

func TestChatModelHandler_ErrorKeepsStartedModel(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := WithProvider(context.Background(), "err-provider-2")
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m2"}})
	h.OnError(ctx, nil, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("err-provider-2", "m2", "error")))
}
