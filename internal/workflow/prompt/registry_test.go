package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FormatEvaluate(t *testing.T) {
	r := NewRegistry()
	msgs, err := r.Format(context.Background(), PromptEvaluateV1, map[string]any{
		"criteria": "pacing, prose_quality",
		"text":     "It rained.",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `{"scores": {"<criterion>": <number>}`)
	assert.Contains(t, msgs[1].Content, "Criteria: pacing, prose_quality")
}

func TestRegistry_CachesTemplates(t *testing.T) {
	r := NewRegistry()
	a, err := r.ChatTemplate(PromptChapterGenV1)
	require.NoError(t, err)
	b, err := r.ChatTemplate(PromptChapterGenV1)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRegistry_UnknownPrompt(t *testing.T) {
	_, err := NewRegistry().ChatTemplate("nope")
	assert.ErrorContains(t, err, "unknown prompt id")
}

func TestRegistry_LoadsAllEmbeddedTemplates(t *testing.T) {
	assert.Equal(t, []PromptID{PromptChapterGenV1, PromptChapterRetryV1, PromptEvaluateV1}, NewRegistry().IDs())
}
