package generation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
)

func TestGenerate_ValidationFailsBeforeAnyCall(t *testing.T) {
	h := newHarness()
	o := h.build()

	for _, mutate := range []func(*entity.GenerationRequest){
		func(r *entity.GenerationRequest) { r.ChapterNumber = 0 },
		func(r *entity.GenerationRequest) { r.CallbackURL = "" },
	} {
		req := validRequest()
		mutate(req)
		_, err := o.Generate(context.Background(), req)
		require.Error(t, err)
	}

	assert.Zero(t, h.memory.buildCalls.Load())
	assert.Zero(t, h.drafter.calls.Load())
	assert.Zero(t, h.evaluator.calls.Load())
	assert.Zero(t, h.delegator.calls.Load())
	assert.Empty(t, h.notifier.sent())
}

func TestGenerate_LocalHappyPath(t *testing.T) {
	h := newHarness()
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ModeLocal, res.Mode)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, []string{"job-index", "job-cache"}, res.JobIDs)

	require.NotNil(t, h.memory.saved)
	assert.Equal(t, "n1-novel", h.memory.saved.NovelID)
	assert.Equal(t, 1, h.memory.saved.Number)
	assert.Equal(t, "The fog rolled in.", h.memory.saved.Content)
	assert.Equal(t, 4, h.memory.saved.WordCount)
	assert.Equal(t, "mysterious", h.memory.saved.Mood)
	assert.Equal(t, []string{"intro", "the lighthouse"}, h.memory.focusPassed)
	assert.Equal(t, 1, h.memory.statePatch["lastChapterNumber"])

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Success)
	assert.Equal(t, res.RequestID, sent[0].RequestID)
}

func TestGenerate_RetriesWithFeedbackAndKeepsBest(t *testing.T) {
	h := newHarness()
	h.drafter.drafts = []string{"first", "second", "third"}
	h.evaluator.scores = map[string]float64{"first": 4, "second": 6.5, "third": 5}
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 2, h.drafter.revisions.Load())
	assert.Equal(t, "second", h.memory.saved.Content)
	assert.InDelta(t, 6.5, res.Evaluation.OverallScore, 0.001)
}

func TestGenerate_StopsRetryingOnceAccepted(t *testing.T) {
	h := newHarness()
	h.drafter.drafts = []string{"weak", "strong", "unused"}
	h.evaluator.scores = map[string]float64{"weak": 3, "strong": 9}
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "strong", h.memory.saved.Content)
}

func TestGenerate_EvaluatorErrorUsesNeutralScores(t *testing.T) {
	h := newHarness()
	h.evaluator.err = errBoom
	h.cfg.Generation.MaxAttempts = 1
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, res.Evaluation.Fallback)
	assert.InDelta(t, 5.0, res.Evaluation.OverallScore, 0.001)
	assert.Equal(t, 4, res.Evaluation.WordCount)
}

func TestGenerate_RevisionFailureKeepsBestDraft(t *testing.T) {
	h := newHarness()
	h.evaluator.scores = map[string]float64{"The fog rolled in.": 2}
	h.drafter.reviseErr = errBoom
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "The fog rolled in.", h.memory.saved.Content)
}

func TestGenerate_FailureSendsFailureCallbackAndReturnsOriginalError(t *testing.T) {
	h := newHarness()
	h.drafter.err = errBoom
	h.notifier.err = callback.ErrDeliveryFailed
	o := h.build()

	_, err := o.Generate(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, apperrors.CodeLLMCallFailed, apperrors.AsAppError(err).Code)
	assert.Zero(t, h.memory.saveCalls.Load())

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Success)
	assert.Equal(t, "LLM call failed", sent[0].Error)
}

func TestGenerate_ContextFailureSurfaces(t *testing.T) {
	h := newHarness()
	h.memory.buildErr = apperrors.ErrNovelNotFound
	o := h.build()

	_, err := o.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, apperrors.ErrNovelNotFound)
	assert.Zero(t, h.drafter.calls.Load())
	require.Len(t, h.notifier.sent(), 1)
}

func TestGenerate_DelegateMode(t *testing.T) {
	h := newHarness()
	h.cfg.Generation.Mode = ModeDelegate
	h.delegator.generationURL = true
	o := h.build()
	require.Equal(t, ModeDelegate, o.Mode())

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(res.Delegated))
	assert.EqualValues(t, 1, h.delegator.calls.Load())
	assert.Zero(t, h.memory.buildCalls.Load())
	assert.True(t, h.notifier.sent()[0].Success)
}

func TestGenerate_DelegateFailure(t *testing.T) {
	h := newHarness()
	h.cfg.Generation.Mode = ModeDelegate
	h.delegator.generationURL = true
	h.delegator.err = errBoom
	o := h.build()

	_, err := o.Generate(context.Background(), validRequest())
	assert.Equal(t, apperrors.CodeDelegationFailed, apperrors.AsAppError(err).Code)
	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Success)
}

func TestNewOrchestrator_DelegateWithoutURLRunsLocally(t *testing.T) {
	h := newHarness()
	h.cfg.Generation.Mode = ModeDelegate
	assert.Equal(t, ModeLocal, h.build().Mode())
}

func TestGenerate_AsyncAcknowledges(t *testing.T) {
	h := newHarness()
	h.cfg.Generation.Async = true
	o := h.build()

	res, err := o.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
	assert.EqualValues(t, 1, h.memory.saveCalls.Load())
	require.Len(t, h.notifier.sent(), 1)
}

func TestGenerate_SignedCallbackVerifies(t *testing.T) {
	sender := callback.NewSender(&config.CallbackConfig{Secret: "shared"})
	var (
		got       callback.Payload
		verifyErr error
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verifyErr = sender.Signer().Verify(body, r.Header.Get(callback.HeaderSignature), r.Header.Get(callback.HeaderTimestamp))
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	h := newHarness()
	o := NewOrchestrator(h.cfg, h.memory, h.drafter, h.evaluator, h.delegator, sender, h.indexer)
	req := validRequest()
	req.CallbackURL = srv.URL
	req.RequestID = "req-42"

	_, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NoError(t, verifyErr)
	assert.True(t, got.Success)
	assert.Equal(t, "req-42", got.RequestID)
}
