package neo4j

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/domain/entity"
)

func TestCharacterPropsRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &entity.Character{
		ID:          "char-1",
		NovelID:     "novel-1",
		Name:        "Mira",
		Traits:      []string{"brave"},
		Origin:      map[string]any{"city": "Kestrel"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Description: "a cartographer",
	}
	c.Normalize()

	props, err := characterProps(c)
	require.NoError(t, err)
	assert.Equal(t, `{"city":"Kestrel"}`, props["originJson"])

	// 驱动返回的列表为 []any
	props["traits"] = []any{"brave"}
	got := characterFromProps(props)
	assert.Equal(t, "Mira", got.Name)
	assert.Equal(t, []string{"brave"}, got.Traits)
	assert.Equal(t, []string{}, got.Fears)
	assert.Equal(t, "Kestrel", got.Origin["city"])
	assert.Equal(t, now, got.CreatedAt)
}

func TestChapterFromProps(t *testing.T) {
	got := chapterFromProps(map[string]any{
		"novelId":   "novel-1",
		"number":    int64(4),
		"wordCount": int64(120),
		"status":    "published",
		"updatedAt": int64(1700000000000),
	})
	assert.Equal(t, 4, got.Number)
	assert.Equal(t, 120, got.WordCount)
	assert.Equal(t, entity.ChapterStatusPublished, got.Status)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got.UpdatedAt)
	assert.True(t, got.CreatedAt.IsZero())
}

func TestDecodeJSONMap(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeJSONMap(nil))
	assert.Equal(t, map[string]any{}, decodeJSONMap("not json"))
	assert.Equal(t, map[string]any{"day": float64(3)}, decodeJSONMap(`{"day":3}`))
}

func TestWorldStateFromProps(t *testing.T) {
	ws := worldStateFromProps(map[string]any{"novelId": "n1", "stateJson": `{"season":"winter"}`})
	assert.Equal(t, "n1", ws.NovelID)
	assert.Equal(t, "winter", ws.State["season"])
}

func TestNormalizeSearchTypes(t *testing.T) {
	assert.Equal(t, []string{"character", "location", "chapter"}, normalizeSearchTypes(nil))
	assert.Equal(t, []string{"location"}, normalizeSearchTypes([]string{" Location ", "location", "spaceship"}))
}

func TestSearchQuery(t *testing.T) {
	q := searchQuery(entity.ContentTypeChapter)
	assert.Contains(t, q, "[:HAS_CHAPTER]->(e:Chapter)")
	assert.Contains(t, q, "e.number AS id")
	assert.Contains(t, q, "toLower(coalesce(e.title, '')) CONTAINS $q")

	q = searchQuery(entity.ContentTypeCharacter)
	assert.True(t, strings.Contains(q, "e.id AS id"))
}

func TestToEntityID(t *testing.T) {
	assert.Equal(t, "abc", toEntityID("abc"))
	assert.Equal(t, "7", toEntityID(int64(7)))
	assert.Equal(t, "", toEntityID(nil))
}

func TestIsSchemaAlreadyExists(t *testing.T) {
	assert.False(t, isSchemaAlreadyExists(assert.AnError))
	assert.True(t, isSchemaAlreadyExists(errors.New("An equivalent constraint already exists")))
}
