package qdrant

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/domain/entity"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("novel-1", "character_c1")
	b := PointID("novel-1", "character_c1")
	c := PointID("novel-2", "character_c1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestBuildFilter(t *testing.T) {
	exclude := 3
	f := BuildFilter("novel-1", entity.VectorFilter{
		NovelID:        "1",
		ExcludeChapter: &exclude,
		ContentTypes:   []string{"chapter", "summary"},
	})

	require.Len(t, f.Must, 3)
	assert.Equal(t, "namespace", f.Must[0].GetField().GetKey())
	assert.Equal(t, "novel-1", f.Must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, []string{"chapter", "summary"}, f.Must[2].GetField().GetMatch().GetKeywords().GetStrings())

	require.Len(t, f.MustNot, 1)
	assert.Equal(t, int64(3), f.MustNot[0].GetField().GetMatch().GetInteger())
}

func TestScoredPointToMatch(t *testing.T) {
	rec := entity.VectorRecord{
		ID: "chapter_n1:2_0",
		Metadata: entity.VectorMetadata{
			NovelID:       "n1",
			EntityType:    "chapter",
			ContentType:   "chapter",
			ChapterNumber: 2,
			Content:       "the lighthouse went dark",
		},
	}
	point := &pb.ScoredPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("novel-n1", rec.ID)}},
		Score:   0.82,
		Payload: recordPayload("novel-n1", rec),
	}

	m := scoredPointToMatch(point, true)
	assert.Equal(t, rec.ID, m.ID)
	assert.InDelta(t, 0.82, m.Score, 1e-6)
	assert.Equal(t, "the lighthouse went dark", m.Content)
	assert.Equal(t, 2, m.Metadata["chapterNumber"])

	m = scoredPointToMatch(point, false)
	assert.Nil(t, m.Metadata)
}

func TestStaleFilter(t *testing.T) {
	f := StaleFilter("novel-1", "chapter", "1:2", []string{"chapter_1:2_0"})
	require.Len(t, f.Must, 3)
	assert.Equal(t, "entity_id", f.Must[2].GetField().GetKey())
	assert.Equal(t, "1:2", f.Must[2].GetField().GetMatch().GetKeyword())
	require.Len(t, f.MustNot, 1)
	assert.Equal(t, "vector_id", f.MustNot[0].GetField().GetKey())
	assert.Equal(t, []string{"chapter_1:2_0"}, f.MustNot[0].GetField().GetMatch().GetKeywords().GetStrings())

	assert.Empty(t, StaleFilter("novel-1", "chapter", "1:2", nil).MustNot)
}
