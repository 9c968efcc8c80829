package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/infrastructure/workflow"
	"novel-orchestrator/internal/workflow/chain"
)

type fakeMemory struct {
	buildCalls  atomic.Int32
	saveCalls   atomic.Int32
	stateCalls  atomic.Int32
	buildErr    error
	saveErr     error
	mu          sync.Mutex
	saved       *entity.Chapter
	statePatch  map[string]any
	focusPassed []string
}

func (m *fakeMemory) BuildContext(_ context.Context, novelID string, n int, focus []string) (*entity.GenerationContext, error) {
	m.buildCalls.Add(1)
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	m.mu.Lock()
	m.focusPassed = focus
	m.mu.Unlock()
	return entity.NewGenerationContext(novelID, n, focus), nil
}

func (m *fakeMemory) SaveChapter(_ context.Context, ch *entity.Chapter) (*entity.Chapter, []string, error) {
	m.saveCalls.Add(1)
	if m.saveErr != nil {
		return nil, nil, m.saveErr
	}
	m.mu.Lock()
	m.saved = ch
	m.mu.Unlock()
	return ch, []string{"job-index", "job-cache"}, nil
}

func (m *fakeMemory) UpdateWorldState(_ context.Context, novelID string, patch map[string]any) (*entity.WorldState, error) {
	m.stateCalls.Add(1)
	m.mu.Lock()
	m.statePatch = patch
	m.mu.Unlock()
	ws := entity.NewWorldState(novelID)
	ws.Merge(patch)
	return ws, nil
}

type fakeDrafter struct {
	drafts    []string
	calls     atomic.Int32
	revisions atomic.Int32
	err       error
	reviseErr error
}

func (d *fakeDrafter) next() string {
	i := int(d.calls.Add(1)) - 1
	if i >= len(d.drafts) {
		i = len(d.drafts) - 1
	}
	return d.drafts[i]
}

func (d *fakeDrafter) Draft(_ context.Context, _ *chain.ChapterInput) (*llm.Generation, error) {
	if d.err != nil {
		d.calls.Add(1)
		return nil, d.err
	}
	return &llm.Generation{Content: d.next()}, nil
}

func (d *fakeDrafter) Revise(_ context.Context, _ *chain.ChapterInput, _ string, _ *llm.Evaluation) (*llm.Generation, error) {
	d.revisions.Add(1)
	if d.reviseErr != nil {
		return nil, d.reviseErr
	}
	return &llm.Generation{Content: d.next()}, nil
}

type fakeEvaluator struct {
	scores map[string]float64
	err    error
	calls  atomic.Int32
}

func (e *fakeEvaluator) Evaluate(_ context.Context, text string, _ []string, _ string) (*llm.Evaluation, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return &llm.Evaluation{OverallScore: e.scores[text], Scores: map[string]float64{}}, nil
}

type fakeDelegator struct {
	generationURL bool
	uploadURL     bool
	err           error
	calls         atomic.Int32
	body          any
}

func (d *fakeDelegator) GenerationEnabled() bool { return d.generationURL }
func (d *fakeDelegator) UploadEnabled() bool     { return d.uploadURL }

func (d *fakeDelegator) DelegateGeneration(_ context.Context, body any) (*workflow.Response, error) {
	return d.delegate(body)
}

func (d *fakeDelegator) DelegateUpload(_ context.Context, body any) (*workflow.Response, error) {
	return d.delegate(body)
}

func (d *fakeDelegator) delegate(body any) (*workflow.Response, error) {
	d.calls.Add(1)
	d.body = body
	if d.err != nil {
		return nil, d.err
	}
	return &workflow.Response{StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []callback.Payload
	urls     []string
	err      error
}

func (n *fakeNotifier) Send(_ context.Context, url string, p callback.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	n.payloads = append(n.payloads, p)
	return n.err
}

func (n *fakeNotifier) sent() []callback.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]callback.Payload(nil), n.payloads...)
}

type fakeIndexer struct {
	enabled bool
	err     error
	calls   atomic.Int32
	last    retrieval.DocumentInput
}

func (i *fakeIndexer) Enabled() bool { return i.enabled }

func (i *fakeIndexer) IndexDocument(_ context.Context, in retrieval.DocumentInput) (int, error) {
	i.calls.Add(1)
	i.last = in
	if i.err != nil {
		return 0, i.err
	}
	return len(in.Chunks), nil
}

var errBoom = errors.New("boom")

type harness struct {
	memory    *fakeMemory
	drafter   *fakeDrafter
	evaluator *fakeEvaluator
	delegator *fakeDelegator
	notifier  *fakeNotifier
	indexer   *fakeIndexer
	cfg       *config.Config
}

func newHarness() *harness {
	return &harness{
		memory:    &fakeMemory{},
		drafter:   &fakeDrafter{drafts: []string{"The fog rolled in."}},
		evaluator: &fakeEvaluator{scores: map[string]float64{"The fog rolled in.": 8}},
		delegator: &fakeDelegator{},
		notifier:  &fakeNotifier{},
		indexer:   &fakeIndexer{enabled: true},
		cfg: &config.Config{
			Generation: config.GenerationConfig{Mode: ModeLocal, MaxAttempts: 3, AcceptScore: 7},
			Upload: config.UploadConfig{
				MaxChunks: 100, MaxChunkSize: 4000, DefaultChunkSize: 1000,
				DefaultOverlap: 100, MaxContentBytes: 1 << 20,
			},
		},
	}
}

func (h *harness) build() *Orchestrator {
	return NewOrchestrator(h.cfg, h.memory, h.drafter, h.evaluator, h.delegator, h.notifier, h.indexer)
}

func validRequest() *entity.GenerationRequest {
	return &entity.GenerationRequest{
		NovelID:         "n1-novel",
		ChapterNumber:   1,
		FocusElements:   "intro, the lighthouse",
		StylePreference: "descriptive",
		Mood:            "mysterious",
		CallbackURL:     "https://example.com/cb",
	}
}
