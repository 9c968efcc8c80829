package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/domain/repository"
)

type fakeGraph struct {
	mu         sync.Mutex
	novels     map[string]*entity.Novel
	characters map[string]*entity.Character
	chapters   map[string]*entity.Chapter
	world      map[string]*entity.WorldState

	getChapterCalls atomic.Int32
	getNovelCalls   atomic.Int32
	contextErr      error
	getDelay        time.Duration
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		novels:     map[string]*entity.Novel{},
		characters: map[string]*entity.Character{},
		chapters:   map[string]*entity.Chapter{},
		world:      map[string]*entity.WorldState{},
	}
}

func (g *fakeGraph) UpsertNovel(_ context.Context, n *entity.Novel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.novels[n.ID] = n
	return nil
}

func (g *fakeGraph) owned(novelID string) error {
	if _, ok := g.novels[novelID]; !ok {
		return repository.ErrNovelNotFound
	}
	return nil
}

func (g *fakeGraph) UpsertCharacter(_ context.Context, c *entity.Character) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.owned(c.NovelID); err != nil {
		return err
	}
	g.characters[c.ID] = c
	return nil
}

func (g *fakeGraph) UpsertLocation(_ context.Context, l *entity.Location) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owned(l.NovelID)
}

func (g *fakeGraph) UpsertChapter(_ context.Context, ch *entity.Chapter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.owned(ch.NovelID); err != nil {
		return err
	}
	g.chapters[ch.Key()] = ch
	return nil
}

func (g *fakeGraph) UpsertWorldState(_ context.Context, novelID string, patch map[string]any) (*entity.WorldState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.owned(novelID); err != nil {
		return nil, err
	}
	ws, ok := g.world[novelID]
	if !ok {
		ws = entity.NewWorldState(novelID)
		g.world[novelID] = ws
	}
	ws.Merge(patch)
	return &entity.WorldState{NovelID: novelID, State: ws.Snapshot(), UpdatedAt: ws.UpdatedAt}, nil
}

func (g *fakeGraph) GetNovel(ctx context.Context, novelID string) (*entity.Novel, error) {
	g.getNovelCalls.Add(1)
	if g.getDelay > 0 {
		select {
		case <-time.After(g.getDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.novels[novelID]; ok {
		return n, nil
	}
	return nil, repository.ErrNotFound
}

func (g *fakeGraph) GetCharacter(_ context.Context, _, id string) (*entity.Character, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.characters[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (g *fakeGraph) GetLocation(context.Context, string, string) (*entity.Location, error) {
	return nil, repository.ErrNotFound
}

func (g *fakeGraph) GetChapter(_ context.Context, novelID string, number int) (*entity.Chapter, error) {
	g.getChapterCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.chapters[entity.ChapterKey(novelID, number)]; ok {
		return ch, nil
	}
	return nil, repository.ErrNotFound
}

func (g *fakeGraph) GetWorldState(_ context.Context, novelID string) (*entity.WorldState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ws, ok := g.world[novelID]; ok {
		return ws, nil
	}
	return nil, repository.ErrNotFound
}

func (g *fakeGraph) GetContext(_ context.Context, novelID string, _ int) (*entity.GraphContext, error) {
	if g.contextErr != nil {
		return nil, g.contextErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.novels[novelID]
	if !ok {
		return nil, repository.ErrNovelNotFound
	}
	gc := &entity.GraphContext{Novel: n, Characters: []*entity.Character{}, Locations: []*entity.Location{}}
	for _, c := range g.characters {
		if c.NovelID == novelID {
			gc.Characters = append(gc.Characters, c)
		}
	}
	return gc, nil
}

func (g *fakeGraph) GetChapterSequence(context.Context, string, int) ([]*entity.Chapter, error) {
	return nil, nil
}

func (g *fakeGraph) SearchEntities(context.Context, string, string, []string) ([]entity.EntityMatch, error) {
	return nil, nil
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string]string
	down    bool
	sets    atomic.Int32
	deletes atomic.Int32
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", false
	}
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, dest any) bool {
	v, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(v), dest) == nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) bool {
	c.sets.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false
	}
	b, _ := json.Marshal(value)
	c.data[key] = string(b)
	return true
}

func (c *fakeCache) Del(_ context.Context, keys ...string) bool {
	c.deletes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return !c.down
}

func (c *fakeCache) HSet(context.Context, string, map[string]any, time.Duration) bool { return false }
func (c *fakeCache) HGet(context.Context, string, string) (string, bool)           { return "", false }
func (c *fakeCache) HGetAll(context.Context, string) (map[string]string, bool)     { return nil, false }

type enqueued struct {
	queue, jobType string
	payload        any
}

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []enqueued
	fail       bool
	processors map[string]repository.JobHandler
}

func (q *fakeQueue) Enqueue(_ context.Context, queue, jobType string, payload any, _ ...repository.EnqueueOption) (*repository.JobHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return nil, errors.New("queue down")
	}
	q.jobs = append(q.jobs, enqueued{queue, jobType, payload})
	return &repository.JobHandle{ID: jobType + "-" + string(rune('0'+len(q.jobs))), Queue: queue, Type: jobType}, nil
}

func (q *fakeQueue) RegisterProcessor(queue, jobType string, handler repository.JobHandler, _ int) {
	if q.processors == nil {
		q.processors = map[string]repository.JobHandler{}
	}
	q.processors[queue+"/"+jobType] = handler
}

func (q *fakeQueue) JobStatus(context.Context, string) (*entity.Job, error) {
	return nil, repository.ErrNotFound
}

type fakeVectors struct {
	enabled     bool
	indexed     atomic.Int32
	searches    atomic.Int32
	lastOptions retrieval.SearchOptions
	lastQuery   string
	matches     []entity.VectorMatch
	indexErr    error
}

func (v *fakeVectors) Enabled() bool { return v.enabled }

func (v *fakeVectors) IndexCharacter(context.Context, *entity.Character) (int, error) {
	v.indexed.Add(1)
	return 1, v.indexErr
}

func (v *fakeVectors) IndexLocation(context.Context, *entity.Location) (int, error) {
	v.indexed.Add(1)
	return 1, v.indexErr
}

func (v *fakeVectors) IndexChapter(context.Context, *entity.Chapter) (int, error) {
	v.indexed.Add(1)
	return 2, v.indexErr
}

func (v *fakeVectors) SemanticSearch(_ context.Context, _, query string, opts retrieval.SearchOptions) []entity.VectorMatch {
	v.searches.Add(1)
	v.lastOptions = opts
	v.lastQuery = query
	if v.matches == nil {
		return []entity.VectorMatch{}
	}
	return v.matches
}
