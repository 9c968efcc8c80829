//go:build integration

package neo4j

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
)

func testRepository(t *testing.T) (*GraphRepository, string) {
	t.Helper()
	ctx := context.Background()
	client, err := NewClient(ctx, &config.Neo4jConfig{
		URI:      "bolt://localhost:7687",
		Username: "neo4j",
		Password: "changeme",
		Database: "neo4j",
	})
	require.NoError(t, err)
	require.NoError(t, client.HealthCheck(ctx))
	require.NoError(t, client.EnsureSchema(ctx))

	repo := NewGraphRepository(client)
	novelID := "it-" + uuid.NewString()
	t.Cleanup(func() {
		_ = repo.DeleteNovel(ctx, novelID)
		_ = client.Close(ctx)
	})
	return repo, novelID
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	repo, _ := testRepository(t)
	require.NoError(t, repo.client.EnsureSchema(context.Background()))
}

func TestUpsertCharacter_RejectsOrphan(t *testing.T) {
	repo, novelID := testRepository(t)
	err := repo.UpsertCharacter(context.Background(), &entity.Character{ID: uuid.NewString(), NovelID: novelID, Name: "ghost"})
	assert.ErrorIs(t, err, repository.ErrNovelNotFound)
}

func TestGraphRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo, novelID := testRepository(t)

	require.NoError(t, repo.UpsertNovel(ctx, entity.NewNovel(novelID, "The Salt Road")))
	charID := uuid.NewString()
	require.NoError(t, repo.UpsertCharacter(ctx, &entity.Character{ID: charID, NovelID: novelID, Name: "Ilse Varga", Description: "smuggler"}))
	require.NoError(t, repo.UpsertLocation(ctx, &entity.Location{ID: uuid.NewString(), NovelID: novelID, Name: "Port Arden"}))

	for n := 1; n <= 3; n++ {
		ch := entity.NewChapter(novelID, n)
		ch.SetContent("the tide came in")
		require.NoError(t, repo.UpsertChapter(ctx, ch))
	}
	// 重复提交同一章节号应合并为一个节点
	again := entity.NewChapter(novelID, 2)
	again.Title = "Second, revised"
	require.NoError(t, repo.UpsertChapter(ctx, again))

	chapters, err := repo.GetChapterSequence(ctx, novelID, 10)
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{chapters[0].Number, chapters[1].Number, chapters[2].Number})
	assert.Equal(t, "Second, revised", chapters[1].Title)

	ws, err := repo.UpsertWorldState(ctx, novelID, map[string]any{"season": "winter"})
	require.NoError(t, err)
	ws, err = repo.UpsertWorldState(ctx, novelID, map[string]any{"day": 3})
	require.NoError(t, err)
	assert.Equal(t, "winter", ws.State["season"])

	gc, err := repo.GetContext(ctx, novelID, 3)
	require.NoError(t, err)
	assert.Equal(t, "The Salt Road", gc.Novel.Title)
	assert.Len(t, gc.Characters, 1)
	assert.Len(t, gc.Chapters, 2)
	assert.Equal(t, "winter", gc.WorldState.State["season"])

	matches, err := repo.SearchEntities(ctx, novelID, "VARGA", []string{"character"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, charID, matches[0].ID)

	got, err := repo.GetCharacter(ctx, novelID, charID)
	require.NoError(t, err)
	assert.Equal(t, "smuggler", got.Description)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)

	_, err = repo.GetChapter(ctx, novelID, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpsertCharacter_SameIDIsScopedPerNovel(t *testing.T) {
	ctx := context.Background()
	repo, novelA := testRepository(t)
	novelB := "it-" + uuid.NewString()
	t.Cleanup(func() { _ = repo.DeleteNovel(ctx, novelB) })

	require.NoError(t, repo.UpsertNovel(ctx, entity.NewNovel(novelA, "North")))
	require.NoError(t, repo.UpsertNovel(ctx, entity.NewNovel(novelB, "South")))

	sharedChar, sharedLoc := uuid.NewString(), uuid.NewString()
	require.NoError(t, repo.UpsertCharacter(ctx, &entity.Character{ID: sharedChar, NovelID: novelA, Name: "Mara", Description: "north"}))
	require.NoError(t, repo.UpsertCharacter(ctx, &entity.Character{ID: sharedChar, NovelID: novelB, Name: "Mara", Description: "south"}))
	require.NoError(t, repo.UpsertLocation(ctx, &entity.Location{ID: sharedLoc, NovelID: novelA, Name: "Keep"}))
	require.NoError(t, repo.UpsertLocation(ctx, &entity.Location{ID: sharedLoc, NovelID: novelB, Name: "Harbor"}))

	a, err := repo.GetCharacter(ctx, novelA, sharedChar)
	require.NoError(t, err)
	assert.Equal(t, "north", a.Description)
	assert.Equal(t, novelA, a.NovelID)
	b, err := repo.GetCharacter(ctx, novelB, sharedChar)
	require.NoError(t, err)
	assert.Equal(t, "south", b.Description)
	assert.Equal(t, novelB, b.NovelID)

	la, err := repo.GetLocation(ctx, novelA, sharedLoc)
	require.NoError(t, err)
	assert.Equal(t, "Keep", la.Name)

	gc, err := repo.GetContext(ctx, novelA, 0)
	require.NoError(t, err)
	require.Len(t, gc.Characters, 1)
	assert.Equal(t, "north", gc.Characters[0].Description)
	require.Len(t, gc.Locations, 1)

	// 删除另一部小说不影响本小说的同 ID 节点
	require.NoError(t, repo.DeleteNovel(ctx, novelB))
	a, err = repo.GetCharacter(ctx, novelA, sharedChar)
	require.NoError(t, err)
	assert.Equal(t, "north", a.Description)
	la, err = repo.GetLocation(ctx, novelA, sharedLoc)
	require.NoError(t, err)
	assert.Equal(t, "Keep", la.Name)
}

func TestGetContext_BoundsLargeNovel(t *testing.T) {
	ctx := context.Background()
	repo, novelID := testRepository(t)
	require.NoError(t, repo.UpsertNovel(ctx, entity.NewNovel(novelID, "Crowded")))

	for i := 0; i < 50; i++ {
		require.NoError(t, repo.UpsertCharacter(ctx, &entity.Character{ID: uuid.NewString(), NovelID: novelID, Name: "extra"}))
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, repo.UpsertLocation(ctx, &entity.Location{ID: uuid.NewString(), NovelID: novelID, Name: "street"}))
	}
	for n := 1; n <= 8; n++ {
		require.NoError(t, repo.UpsertChapter(ctx, entity.NewChapter(novelID, n)))
	}

	gc, err := repo.GetContext(ctx, novelID, 0)
	require.NoError(t, err)
	assert.Len(t, gc.Characters, contextCharacterLimit)
	assert.Len(t, gc.Locations, contextLocationLimit)
	require.Len(t, gc.Chapters, contextChapterLimit)
	assert.Equal(t, 4, gc.Chapters[0].Number)
	assert.Equal(t, 8, gc.Chapters[len(gc.Chapters)-1].Number)

	gc, err = repo.GetContext(ctx, novelID, 3)
	require.NoError(t, err)
	require.Len(t, gc.Chapters, 2)
	assert.Equal(t, []int{1, 2}, []int{gc.Chapters[0].Number, gc.Chapters[1].Number})
}
