package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"novel-orchestrator/internal/domain/entity"
)

func TestBuildCharactersBlock(t *testing.T) {
	out := BuildCharactersBlock([]*entity.Character{
		{Name: "Mira", Description: "a cartographer", Traits: []string{"curious", "stubborn"}},
		nil,
		{Name: "  "},
	})
	assert.Equal(t, "- Mira: a cartographer (traits: curious, stubborn)", out)
	assert.Equal(t, "(none)", BuildCharactersBlock(nil))
}

func TestBuildWorldStateBlock_SortedKeys(t *testing.T) {
	out := BuildWorldStateBlock(map[string]any{"season": "winter", "chapterCount": 3})
	assert.Equal(t, "- chapterCount: 3\n- season: \"winter\"", out)
}

func TestBuildPreviousChapterBlock(t *testing.T) {
	assert.Equal(t, "(none)", BuildPreviousChapterBlock(nil, 10))

	ch := &entity.Chapter{Number: 2, Title: "Ashes", Content: "abcdefghijklmnop"}
	assert.Equal(t, "Chapter 2: Ashes\nklmnop", BuildPreviousChapterBlock(ch, 6))

	ch.Summary = "They fled."
	assert.Equal(t, "Chapter 2: Ashes\nThey fled.", BuildPreviousChapterBlock(ch, 6))
}

func TestBuildSimilarBlock(t *testing.T) {
	out := BuildSimilarBlock([]entity.VectorMatch{{Score: 0.91, Content: "the tower fell"}, {Content: ""}}, 9)
	assert.Equal(t, "- (0.91) the tower", out)
}

func TestBuildListBlock(t *testing.T) {
	assert.Equal(t, "a; b", BuildListBlock([]string{" a ", "", "b"}))
	assert.Equal(t, "(none)", BuildListBlock(nil))
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSONObject("sure!\n```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1,2]`, ExtractJSONObject("list: [1,2] done"))
	assert.Equal(t, "no json here", ExtractJSONObject("  no json here "))
	assert.Equal(t, `{"overall":7,"note":"uses {braces}"}`,
		ExtractJSONObject(`Scores for {coherence}: {"overall":7,"note":"uses {braces}"}`))
}

func TestTruncateByRunes(t *testing.T) {
	assert.Equal(t, "天空", TruncateByRunes("天空之城", 2))
	assert.Equal(t, "", TruncateByRunes("abc", 0))
	assert.Equal(t, "abc", TruncateByRunes("abc", 5))
}

func TestTailByRunes(t *testing.T) {
	assert.Equal(t, "之城", TailByRunes("天空之城", 2))
	assert.Equal(t, "", TailByRunes("abc", 0))
	assert.Equal(t, "abc", TailByRunes("abc", 5))
}
