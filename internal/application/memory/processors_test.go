package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/pkg/logger"
)

func jobFor(t *testing.T, jobType string, task EntityTask) *entity.Job {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return entity.NewJob("job-1", QueueIndex, jobType, payload, 3)
}

func TestProcessors_IndexAndCache(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	c, _, err := h.svc.CreateCharacter(context.Background(), &entity.Character{NovelID: "n1", Name: "Mira"})
	require.NoError(t, err)

	h.svc.RegisterProcessors(map[string]int{QueueIndex: 3})
	index := h.queue.processors[QueueIndex+"/"+JobTypeIndexEntity]
	refresh := h.queue.processors[QueueCache+"/"+JobTypeCacheRefresh]
	require.NotNil(t, index)
	require.NotNil(t, refresh)

	task := EntityTask{Kind: KindCharacter, NovelID: "n1", EntityID: c.ID}
	require.NoError(t, index(context.Background(), jobFor(t, JobTypeIndexEntity, task)))
	assert.Equal(t, int32(1), h.vectors.indexed.Load())

	require.NoError(t, refresh(context.Background(), jobFor(t, JobTypeCacheRefresh, task)))
	_, ok := h.cache.Get(context.Background(), characterKey("n1", c.ID))
	assert.True(t, ok)
}

func TestProcessors_SkipVanishedAndDisabled(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	task := EntityTask{Kind: KindChapter, NovelID: "n1", ChapterNumber: 9}

	assert.NoError(t, h.svc.processIndex(context.Background(), jobFor(t, JobTypeIndexEntity, task)))
	assert.Equal(t, int32(0), h.vectors.indexed.Load())

	h.vectors.enabled = false
	_, _, err := h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1", Number: 9, Content: "x"})
	require.NoError(t, err)
	assert.NoError(t, h.svc.processIndex(context.Background(), jobFor(t, JobTypeIndexEntity, task)))
	assert.Equal(t, int32(0), h.vectors.indexed.Load())
}

func TestProcessors_IndexErrorRetries(t *testing.T) {
	h := newHarness(t)
	h.seedNovel(t, "n1")
	_, _, err := h.svc.SaveChapter(context.Background(), &entity.Chapter{NovelID: "n1", Number: 1, Content: "x"})
	require.NoError(t, err)
	h.vectors.indexErr = errors.New("milvus unavailable")

	err = h.svc.processIndex(context.Background(), jobFor(t, JobTypeIndexEntity, EntityTask{Kind: KindChapter, NovelID: "n1", ChapterNumber: 1}))
	assert.ErrorContains(t, err, "milvus unavailable")
}

func TestOnJobFailure_LogsEntityScope(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", "json")
	t.Cleanup(func() { logger.InitWithWriter(&bytes.Buffer{}, "info", "json") })

	h := newHarness(t)
	job := jobFor(t, JobTypeIndexEntity, EntityTask{Kind: KindChapter, NovelID: "n1", ChapterNumber: 4})
	h.svc.OnJobFailure(context.Background(), job, errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "chapter", rec["entity_type"])
	assert.Equal(t, "n1:4", rec["entity_id"])
	assert.Equal(t, "n1", rec["novel_id"])
	assert.Equal(t, "boom", rec["error"])
}
