package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
)

type harness struct {
	svc     *Service
	graph   *fakeGraph
	cache   *fakeCache
	queue   *fakeQueue
	vectors *fakeVectors
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		graph:   newFakeGraph(),
		cache:   newFakeCache(),
		queue:   &fakeQueue{},
		vectors: &fakeVectors{enabled: true},
	}
	h.svc = NewService(&config.Config{}, h.graph, h.cache, h.queue, h.vectors)
	return h
}

func (h *harness) seedNovel(t *testing.T, id string) {
	t.Helper()
	_, _, err := h.svc.CreateNovel(context.Background(), &entity.Novel{ID: id, Title: "The Glass Sea"})
	require.NoError(t, err)
}

func TestCreateCharacter_EnqueuesIndexAndCacheJobs(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	h.queue.jobs = nil

	c, jobIDs, err := h.svc.CreateCharacter(context.Background(), &entity.Character{NovelID: "n1", Name: "Mira"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.NotNil(t, c.Traits)
	assert.Len(t, jobIDs, 2)

	require.Len(t, h.queue.jobs, 2)
	assert.Equal(t, QueueIndex, h.queue.jobs[0].queue)
	assert.Equal(t, JobTypeIndexEntity, h.queue.jobs[0].jobType)
	assert.Equal(t, QueueCache, h.queue.jobs[1].queue)
	task := h.queue.jobs[0].payload.(EntityTask)
	assert.Equal(t, EntityTask{Kind: KindCharacter, NovelID: "n1", EntityID: c.ID}, task)
}

func TestCreateCharacter_OrphanRejected(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.svc.CreateCharacter(context.Background(), &entity.Character{NovelID: "ghost", Name: "Mira"})
	assert.ErrorIs(t, err, apperrors.ErrNovelNotFound)
	assert.Empty(t, h.queue.jobs)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.svc.CreateNovel(context.Background(), &entity.Novel{ID: "n1"})
	assert.True(t, apperrors.IsAppError(err))

	_, _, err = h.svc.CreateLocation(context.Background(), &entity.Location{NovelID: "n1", Name: "Port", Type: "moon"})
	assert.ErrorContains(t, err, "invalid location type")

	_, _, err = h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1"})
	assert.ErrorContains(t, err, "positive chapter number")
}

func TestCreate_EnqueueFailureKeepsGraphWrite(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	h.queue.fail = true

	ch, jobIDs, err := h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1", Number: 1, Content: "It began."})
	require.NoError(t, err)
	assert.Empty(t, jobIDs)
	assert.Equal(t, 2, ch.WordCount)

	_, err = h.graph.GetChapter(context.Background(), "n1", 1)
	assert.NoError(t, err)
}

func TestGetChapter_CacheFirstWithBackfill(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	_, _, err := h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1", Number: 1, Content: "One."})
	require.NoError(t, err)

	_, err = h.svc.GetChapter(context.Background(), "n1", 1)
	require.NoError(t, err)
	ch, err := h.svc.GetChapter(context.Background(), "n1", 1)
	require.NoError(t, err)
	assert.Equal(t, "One.", ch.Content)
	assert.Equal(t, int32(1), h.graph.getChapterCalls.Load())
}

func TestGetChapter_CacheDownFallsBackToGraph(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	_, _, err := h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1", Number: 1, Content: "One."})
	require.NoError(t, err)
	h.cache.down = true

	for range 2 {
		_, err = h.svc.GetChapter(context.Background(), "n1", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), h.graph.getChapterCalls.Load())
}

func TestGetNovel_SingleflightCollapsesMisses(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	h.cache.down = true
	h.graph.getDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := h.svc.GetNovel(context.Background(), "n1")
			assert.NoError(t, err)
			assert.Equal(t, "The Glass Sea", n.Title)
		}()
	}
	wg.Wait()
	assert.Less(t, h.graph.getNovelCalls.Load(), int32(8))
}

func TestGetNovel_SharedLoadReturnsIndependentCopies(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	h.cache.down = true
	h.graph.getDelay = 50 * time.Millisecond

	results := make([]*entity.Novel, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := h.svc.GetNovel(context.Background(), "n1")
			assert.NoError(t, err)
			results[i] = n
		}()
	}
	wg.Wait()
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotSame(t, results[0], results[1])

	results[0].Title = "edited by one caller"
	assert.Equal(t, "The Glass Sea", results[1].Title)
	again, err := h.svc.GetNovel(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "The Glass Sea", again.Title)
}

func TestGetNovel_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	h.cache.down = true
	h.graph.getDelay = 100 * time.Millisecond

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.svc.GetNovel(first, "n1")
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		n, err := h.svc.GetNovel(context.Background(), "n1")
		if err == nil && n.Title != "The Glass Sea" {
			err = errors.New("unexpected title " + n.Title)
		}
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.Error(t, <-firstErr)
	assert.NoError(t, <-second)
	assert.Equal(t, int32(1), h.graph.getNovelCalls.Load())
}

func TestGetNovel_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetNovel(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNovelNotFound)
}

func TestWorldState_MergeAndEmptyDefault(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")

	ws, err := h.svc.GetWorldState(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, ws.State)

	_, err = h.svc.UpdateWorldState(context.Background(), "n1", map[string]any{"season": "winter"})
	require.NoError(t, err)
	ws, err = h.svc.UpdateWorldState(context.Background(), "n1", map[string]any{"war": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"season": "winter", "war": true}, ws.State)

	cached, ok := h.cache.Get(context.Background(), worldStateKey("n1"))
	require.True(t, ok)
	var got entity.WorldState
	require.NoError(t, json.Unmarshal([]byte(cached), &got))
	assert.Equal(t, "winter", got.State["season"])

	_, err = h.svc.UpdateWorldState(context.Background(), "n1", nil)
	assert.Error(t, err)
}

func TestBuildContext_StableShape(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")

	gc, err := h.svc.BuildContext(context.Background(), "n1", 1, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(gc)
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(raw, &shape))
	assert.Equal(t, []any{}, shape["characters"])
	assert.Equal(t, []any{}, shape["locations"])
	assert.Equal(t, map[string]any{}, shape["worldState"])
	assert.Equal(t, []any{}, shape["similarContent"])
	assert.Equal(t, []any{}, shape["focusElements"])
	assert.Contains(t, shape, "previousChapter")
	assert.Nil(t, shape["previousChapter"])
	assert.Equal(t, int32(0), h.vectors.searches.Load())
	assert.Equal(t, int32(0), h.graph.getChapterCalls.Load())
}

func TestBuildContext_FansOut(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	ctx := context.Background()
	_, _, err := h.svc.CreateCharacter(ctx, &entity.Character{NovelID: "n1", Name: "Mira"})
	require.NoError(t, err)
	_, _, err = h.svc.SaveChapter(ctx, &entity.Chapter{NovelID: "n1", Number: 2, Summary: "The fleet burned."})
	require.NoError(t, err)
	_, err = h.svc.UpdateWorldState(ctx, "n1", map[string]any{"season": "winter"})
	require.NoError(t, err)
	h.vectors.matches = []entity.VectorMatch{{ID: "v1", Content: "ash"}}

	gc, err := h.svc.BuildContext(ctx, "n1", 3, []string{"betrayal", " "})
	require.NoError(t, err)
	assert.Equal(t, "The Glass Sea", gc.Novel.Title)
	assert.Len(t, gc.Characters, 1)
	require.NotNil(t, gc.PreviousChapter)
	assert.Equal(t, 2, gc.PreviousChapter.Number)
	assert.Equal(t, "winter", gc.WorldState["season"])
	assert.Len(t, gc.SimilarContent, 1)

	require.NotNil(t, h.vectors.lastOptions.ExcludeChapter)
	assert.Equal(t, 3, *h.vectors.lastOptions.ExcludeChapter)
	assert.Equal(t, 5, h.vectors.lastOptions.TopK)
	assert.Equal(t, "betrayal chapter 3", h.vectors.lastQuery)
}

func TestBuildContext_GraphFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.BuildContext(context.Background(), "ghost", 1, nil)
	assert.ErrorIs(t, err, apperrors.ErrNovelNotFound)

	h.graph.contextErr = errors.New("connection refused")
	_, err = h.svc.BuildContext(context.Background(), "ghost", 1, nil)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeGraphError, appErr.Code)
}
