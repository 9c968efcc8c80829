package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

// UploadResult 摄入结果
type UploadResult struct {
	RequestID  string            `json:"requestId"`
	NovelID    string            `json:"novelId"`
	DocumentID string            `json:"documentId,omitempty"`
	Mode       entity.UploadMode `json:"mode"`
	Chunks     int               `json:"chunks"`
	Indexed    int               `json:"indexed"`
	Delegated  json.RawMessage   `json:"delegated,omitempty"`
}

// Upload 校验并摄入文档：配置了上传委托地址时交给工作流引擎，否则本地切分索引
func (o *Orchestrator) Upload(ctx context.Context, req *entity.UploadRequest) (res *UploadResult, err error) {
	if err := ValidateUpload(req, o.upload); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = logger.WithContext(ctx, logger.NovelIDKey, req.NovelID)
	ctx, span := tracer.Start(ctx, "generation.Upload", trace.WithAttributes(
		attribute.String("novel_id", req.NovelID),
		attribute.String("upload_mode", string(req.Mode())),
	))
	defer span.End()

	if o.mode == ModeDelegate && o.delegator != nil && o.delegator.UploadEnabled() {
		res, err = o.delegateUpload(ctx, req)
	} else {
		res, err = o.ingest(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "document ingestion failed", err, "upload_mode", string(req.Mode()))
		o.notifyFailure(ctx, req.CallbackURL, req.RequestID, err)
		return nil, err
	}
	o.notify(ctx, req.CallbackURL, callback.Payload{Success: true, Data: res, RequestID: req.RequestID})
	return res, nil
}

func (o *Orchestrator) delegateUpload(ctx context.Context, req *entity.UploadRequest) (*UploadResult, error) {
	resp, err := o.delegator.DelegateUpload(ctx, req)
	if err != nil {
		return nil, apperrors.ErrDelegationFailed.WithError(err)
	}
	return &UploadResult{
		RequestID: req.RequestID,
		NovelID:   req.NovelID,
		Mode:      req.Mode(),
		Delegated: resp.Body,
	}, nil
}

func (o *Orchestrator) ingest(ctx context.Context, req *entity.UploadRequest) (*UploadResult, error) {
	if o.indexer == nil || !o.indexer.Enabled() {
		return nil, apperrors.New(apperrors.CodeServiceUnavailable, "vector store is not configured")
	}

	var chunks []string
	source := req.Content
	switch req.Mode() {
	case entity.UploadModeChunks:
		chunks = make([]string, 0, len(req.Chunks))
		var b strings.Builder
		for _, c := range req.Chunks {
			chunks = append(chunks, c.Content)
			b.WriteString(c.Content)
		}
		source = b.String()
	case entity.UploadModeContent:
		chunks = retrieval.Chunk(req.Content, req.ChunkingStrategy, req.ChunkSize, req.Overlap)
	case entity.UploadModeFileURL:
		text, err := o.fetch(ctx, req.FileURL)
		if err != nil {
			return nil, err
		}
		source = text
		chunks = retrieval.Chunk(text, req.ChunkingStrategy, req.ChunkSize, req.Overlap)
	}
	if len(chunks) == 0 {
		return nil, apperrors.Validation("document has no indexable content")
	}
	if o.upload.MaxChunks > 0 && len(chunks) > o.upload.MaxChunks {
		return nil, apperrors.ErrPayloadTooLarge.WithDetail(fmt.Sprintf("document produced %d chunks (max %d)", len(chunks), o.upload.MaxChunks))
	}

	docID := retrieval.DocumentID(req.NovelID, source)
	n, err := o.indexer.IndexDocument(ctx, retrieval.DocumentInput{NovelID: req.NovelID, DocumentID: docID, Chunks: chunks})
	if err != nil {
		metrics.IngestedChunks.WithLabelValues("failed").Add(float64(len(chunks)))
		return nil, apperrors.ErrIngestionFailed.WithError(err)
	}
	metrics.IngestedChunks.WithLabelValues("indexed").Add(float64(n))
	logger.Info(ctx, "document ingested", "document_id", docID, "chunks", len(chunks), "indexed", n)

	return &UploadResult{
		RequestID:  req.RequestID,
		NovelID:    req.NovelID,
		DocumentID: docID,
		Mode:       req.Mode(),
		Chunks:     len(chunks),
		Indexed:    n,
	}, nil
}

// fetch 有界拉取远程文本文件
func (o *Orchestrator) fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.upload.FetchTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", apperrors.Validation("invalid fileUrl: %v", err)
	}
	httpReq.Header.Set("Accept", "text/plain, text/markdown, */*;q=0.1")

	start := time.Now()
	resp, err := o.fetchClient.Do(httpReq)
	if err != nil {
		return "", apperrors.ErrIngestionFailed.WithDetail("fetch file").WithError(err)
	}
	defer resp.Body.Close()
	logger.Debug(ctx, "fetched upload file", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperrors.ErrIngestionFailed.WithDetail(fmt.Sprintf("fetch file: status %d", resp.StatusCode))
	}
	if !isTextual(resp.Header.Get("Content-Type"), httpReq.URL.Path) {
		return "", apperrors.Validation("fileUrl must point to a text or markdown document")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.upload.MaxFetchBytes+1))
	if err != nil {
		return "", apperrors.ErrIngestionFailed.WithDetail("read file").WithError(err)
	}
	if int64(len(body)) > o.upload.MaxFetchBytes {
		return "", apperrors.ErrPayloadTooLarge.WithDetail("remote file exceeds fetch limit")
	}
	if !utf8.Valid(body) {
		return "", apperrors.Validation("remote file is not valid utf-8 text")
	}
	return string(body), nil
}

func isTextual(contentType, urlPath string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch {
		case strings.HasPrefix(mediaType, "text/"),
			mediaType == "application/markdown",
			mediaType == "application/x-markdown":
			return true
		case mediaType != "application/octet-stream":
			return false
		}
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}
