package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChapterSetContentDerivesWordCount(t *testing.T) {
	ch := NewChapter(" n1 ", 3)
	ch.SetContent("The tower  was\nsilent.")
	assert.Equal(t, "n1", ch.NovelID)
	assert.Equal(t, 4, ch.WordCount)
	assert.Equal(t, "n1:3", ch.Key())

	ch.SetContent("夜色很深 then")
	assert.Equal(t, 5, ch.WordCount)
}

func TestWorldStateMergeIsShallowOverlay(t *testing.T) {
	ws := NewWorldState("n1")
	ws.Merge(map[string]any{"location": "keep", "plot": map[string]any{"act": 1, "arc": "a"}})
	ws.Merge(map[string]any{"plot": map[string]any{"act": 2}, "chaptersWritten": 1})

	assert.Equal(t, "keep", ws.State["location"])
	assert.Equal(t, map[string]any{"act": 2}, ws.State["plot"])
	assert.Equal(t, 1, ws.State["chaptersWritten"])

	var nilState *WorldState
	assert.NotNil(t, nilState.Snapshot())
}

func TestGenerationContextHasStableShape(t *testing.T) {
	gc := NewGenerationContext("n1", 2, nil)
	raw, err := json.Marshal(gc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"novel", "characters", "locations", "worldState", "previousChapter", "similarContent", "focusElements", "chapterNumber", "timestamp"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, []any{}, m["characters"])
	assert.Equal(t, []any{}, m["focusElements"])
	assert.Equal(t, map[string]any{}, m["worldState"])
}

func TestCharacterNormalizeFillsLists(t *testing.T) {
	c := &Character{ID: "c1", NovelID: "n1", Name: "Ava"}
	c.Normalize()
	assert.NotNil(t, c.Traits)
	assert.NotNil(t, c.Origin)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestUploadRequestMode(t *testing.T) {
	assert.Equal(t, UploadModeChunks, (&UploadRequest{Chunks: []DocumentChunk{{Content: "x"}}, Content: "y"}).Mode())
	assert.Equal(t, UploadModeContent, (&UploadRequest{Content: "y", FileURL: "http://x"}).Mode())
	assert.Equal(t, UploadModeFileURL, (&UploadRequest{FileURL: "http://x"}).Mode())
	assert.Equal(t, UploadMode(""), (&UploadRequest{}).Mode())
}

func TestJobStateMachine(t *testing.T) {
	job := NewJob("j1", "stream:index", "index_character", nil, 2)
	require.NoError(t, job.Start())
	assert.Equal(t, JobStateProcessing, job.State)

	terminal, err := job.Fail(assert.AnError)
	require.NoError(t, err)
	assert.False(t, terminal)
	assert.Equal(t, JobStateQueued, job.State)

	require.NoError(t, job.Start())
	terminal, err = job.Fail(assert.AnError)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, JobStateFailed, job.State)
	assert.True(t, job.IsTerminal())

	assert.ErrorIs(t, job.Start(), ErrInvalidTransition)
}

func TestJobCompleteClearsError(t *testing.T) {
	job := NewJob("j1", "q", "t", nil, 0)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.ErrorIs(t, job.Complete(), ErrInvalidTransition)
	require.NoError(t, job.Start())
	require.NoError(t, job.Complete())
	assert.Equal(t, JobStateCompleted, job.State)
	assert.NotNil(t, job.FinishedAt)
}
