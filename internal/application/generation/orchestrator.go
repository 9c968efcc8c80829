// Package generation 请求编排：校验、委托或本地生成、文档摄入与签名回调
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/infrastructure/workflow"
	"novel-orchestrator/internal/workflow/chain"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("generation")

// 编排模式
const (
	ModeDelegate = "delegate"
	ModeLocal    = "local"
)

// 生成结果状态
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
)

const (
	defaultMaxAttempts  = 3
	defaultAcceptScore  = 7.0
	defaultRunTimeout   = 5 * time.Minute
	defaultFetchTimeout = 30 * time.Second
	defaultMaxFetch     = 10 << 20
)

// Memory 编排依赖的记忆层能力
type Memory interface {
	BuildContext(ctx context.Context, novelID string, chapterNumber int, focusElements []string) (*entity.GenerationContext, error)
	SaveChapter(ctx context.Context, ch *entity.Chapter) (*entity.Chapter, []string, error)
	UpdateWorldState(ctx context.Context, novelID string, patch map[string]any) (*entity.WorldState, error)
}

// Drafter 章节起草与修订
type Drafter interface {
	Draft(ctx context.Context, in *chain.ChapterInput) (*llm.Generation, error)
	Revise(ctx context.Context, in *chain.ChapterInput, draft string, eval *llm.Evaluation) (*llm.Generation, error)
}

// Evaluator 草稿评估
type Evaluator interface {
	Evaluate(ctx context.Context, text string, criteria []string, providerName string) (*llm.Evaluation, error)
}

// Delegator 外部工作流引擎
type Delegator interface {
	GenerationEnabled() bool
	UploadEnabled() bool
	DelegateGeneration(ctx context.Context, body any) (*workflow.Response, error)
	DelegateUpload(ctx context.Context, body any) (*workflow.Response, error)
}

// Notifier 回调投递
type Notifier interface {
	Send(ctx context.Context, url string, p callback.Payload) error
}

// DocumentIndexer 文档分片索引
type DocumentIndexer interface {
	Enabled() bool
	IndexDocument(ctx context.Context, in retrieval.DocumentInput) (int, error)
}

// GenerationResult 生成结果
type GenerationResult struct {
	RequestID     string          `json:"requestId"`
	NovelID       string          `json:"novelId"`
	ChapterNumber int             `json:"chapterNumber"`
	Mode          string          `json:"mode"`
	Status        string          `json:"status"`
	Chapter       *entity.Chapter `json:"chapter,omitempty"`
	Evaluation    *llm.Evaluation `json:"evaluation,omitempty"`
	Attempts      int             `json:"attempts,omitempty"`
	JobIDs        []string        `json:"jobIds,omitempty"`
	Delegated     json.RawMessage `json:"delegated,omitempty"`
}

// Orchestrator 请求编排器
type Orchestrator struct {
	memory    Memory
	drafter   Drafter
	evaluator Evaluator
	delegator Delegator
	notifier  Notifier
	indexer   DocumentIndexer

	mode        string
	async       bool
	maxAttempts int
	acceptScore float64
	criteria    []string
	runTimeout  time.Duration
	upload      config.UploadConfig
	fetchClient *http.Client

	inflight sync.WaitGroup
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg *config.Config, memory Memory, drafter Drafter, evaluator Evaluator, delegator Delegator, notifier Notifier, indexer DocumentIndexer) *Orchestrator {
	g := cfg.Generation
	o := &Orchestrator{
		memory:      memory,
		drafter:     drafter,
		evaluator:   evaluator,
		delegator:   delegator,
		notifier:    notifier,
		indexer:     indexer,
		mode:        g.Mode,
		async:       g.Async,
		maxAttempts: g.MaxAttempts,
		acceptScore: g.AcceptScore,
		criteria:    g.Criteria,
		runTimeout:  g.RunTimeout,
		upload:      cfg.Upload,
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = defaultMaxAttempts
	}
	if o.acceptScore <= 0 {
		o.acceptScore = defaultAcceptScore
	}
	if o.runTimeout <= 0 {
		o.runTimeout = defaultRunTimeout
	}
	if o.upload.FetchTimeout <= 0 {
		o.upload.FetchTimeout = defaultFetchTimeout
	}
	if o.upload.MaxFetchBytes <= 0 {
		o.upload.MaxFetchBytes = defaultMaxFetch
	}
	o.fetchClient = &http.Client{Timeout: o.upload.FetchTimeout}

	if o.mode != ModeLocal && (delegator == nil || !delegator.GenerationEnabled()) {
		logger.Warn(context.Background(), "workflow generation url not configured, orchestrating locally")
		o.mode = ModeLocal
	}
	return o
}

// Mode 返回生效的编排模式
func (o *Orchestrator) Mode() string { return o.mode }

// Generate 校验并执行章节生成；异步模式下立即返回 accepted
func (o *Orchestrator) Generate(ctx context.Context, req *entity.GenerationRequest) (*GenerationResult, error) {
	if err := ValidateGeneration(req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	ctx = logger.WithContext(ctx, logger.NovelIDKey, req.NovelID)

	if o.async {
		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			_, _ = o.run(logger.Detach(ctx), req)
		}()
		return &GenerationResult{
			RequestID:     req.RequestID,
			NovelID:       req.NovelID,
			ChapterNumber: req.ChapterNumber,
			Mode:          o.mode,
			Status:        StatusAccepted,
		}, nil
	}
	return o.run(ctx, req)
}

// Wait 等待进行中的异步生成结束或 ctx 到期
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, req *entity.GenerationRequest) (res *GenerationResult, err error) {
	ctx, span := tracer.Start(ctx, "generation.Run", trace.WithAttributes(
		attribute.String("novel_id", req.NovelID),
		attribute.Int("chapter_number", req.ChapterNumber),
		attribute.String("mode", o.mode),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
			span.RecordError(err)
		}
		metrics.GenerationTotal.WithLabelValues(o.mode, status).Inc()
		metrics.GenerationDuration.WithLabelValues(o.mode).Observe(time.Since(start).Seconds())
	}()

	if o.mode == ModeDelegate {
		res, err = o.delegateGeneration(ctx, req)
	} else {
		res, err = o.generateLocally(ctx, req)
	}
	if err != nil {
		logger.Error(ctx, "chapter generation failed", err,
			"chapter_number", req.ChapterNumber, "mode", o.mode)
		o.notifyFailure(ctx, req.CallbackURL, req.RequestID, err)
		return nil, err
	}

	o.notify(ctx, req.CallbackURL, callback.Payload{Success: true, Data: res, RequestID: req.RequestID})
	logger.Info(ctx, "chapter generation completed",
		"chapter_number", req.ChapterNumber, "mode", o.mode, "attempts", res.Attempts)
	return res, nil
}

func (o *Orchestrator) delegateGeneration(ctx context.Context, req *entity.GenerationRequest) (*GenerationResult, error) {
	resp, err := o.delegator.DelegateGeneration(ctx, req)
	if err != nil {
		return nil, apperrors.ErrDelegationFailed.WithError(err)
	}
	return &GenerationResult{
		RequestID:     req.RequestID,
		NovelID:       req.NovelID,
		ChapterNumber: req.ChapterNumber,
		Mode:          ModeDelegate,
		Status:        StatusCompleted,
		Delegated:     resp.Body,
	}, nil
}

// notify 尽力投递回调，失败仅记录
func (o *Orchestrator) notify(ctx context.Context, url string, p callback.Payload) {
	if url == "" || o.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(logger.Detach(ctx), callbackBudget)
	defer cancel()
	_ = o.notifier.Send(ctx, url, p)
}

func (o *Orchestrator) notifyFailure(ctx context.Context, url, requestID string, cause error) {
	o.notify(ctx, url, callback.Payload{
		Success:   false,
		Error:     clientMessage(cause),
		RequestID: requestID,
	})
}

// callbackBudget 回调在原请求超时后仍需完成的上限
const callbackBudget = 15 * time.Second

func clientMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Detail != "" {
			return appErr.Message + ": " + appErr.Detail
		}
		return appErr.Message
	}
	return apperrors.ErrInternalError.Message
}
