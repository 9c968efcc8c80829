// Package workflow 外部工作流引擎委托客户端
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
	traceutil "novel-orchestrator/pkg/tracer"
	"novel-orchestrator/pkg/utils"
)

var tracer = otel.Tracer("workflow")

const (
	defaultTimeout = 2 * time.Minute
	tokenTTL       = 5 * time.Minute
	maxErrorBody   = 2048
	maxResultBody  = 4 << 20

	// PurposeGeneration 章节生成委托
	PurposeGeneration = "generation"
	// PurposeUpload 文档摄入委托
	PurposeUpload = "upload"
)

var (
	// ErrNotConfigured 未配置目标地址
	ErrNotConfigured = errors.New("workflow engine url is not configured")
	// ErrUnexpectedStatus 工作流引擎返回非 2xx
	ErrUnexpectedStatus = errors.New("workflow engine returned non-success status")
)

// Response 工作流引擎响应
type Response struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Client 工作流引擎客户端
type Client struct {
	httpClient    *http.Client
	generationURL string
	uploadURL     string
	token         string
	jwt           *utils.JWTManager
}

// NewClient 创建工作流引擎客户端
func NewClient(cfg *config.WorkflowConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		generationURL: cfg.GenerationURL,
		uploadURL:     cfg.UploadURL,
		token:         cfg.Token,
	}
	if cfg.JWTSecret != "" {
		c.jwt = utils.NewJWTManager(cfg.JWTSecret, "novel-orchestrator")
	}
	return c
}

// GenerationEnabled 是否配置了生成委托地址
func (c *Client) GenerationEnabled() bool { return c.generationURL != "" }

// UploadEnabled 是否配置了摄入委托地址
func (c *Client) UploadEnabled() bool { return c.uploadURL != "" }

// DelegateGeneration 将生成请求转发到工作流引擎
func (c *Client) DelegateGeneration(ctx context.Context, body any) (*Response, error) {
	return c.post(ctx, PurposeGeneration, c.generationURL, body)
}

// DelegateUpload 将摄入请求转发到工作流引擎
func (c *Client) DelegateUpload(ctx context.Context, body any) (*Response, error) {
	return c.post(ctx, PurposeUpload, c.uploadURL, body)
}

func (c *Client) post(ctx context.Context, purpose, url string, body any) (resp *Response, err error) {
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, purpose)
	}

	ctx, span := tracer.Start(ctx, "workflow.Delegate",
		trace.WithAttributes(attribute.String("workflow.purpose", purpose)))
	defer span.End()
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			traceutil.RecordError(span, err)
		}
		metrics.DelegationDuration.WithLabelValues(purpose, status).Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal delegation body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create delegation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	traceutil.InjectHeaders(ctx, req.Header)

	token, err := c.bearerToken()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow engine request failed: %w", err)
	}
	defer httpResp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, httpResp.StatusCode, bytes.TrimSpace(snippet))
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResultBody))
	if err != nil {
		return nil, fmt.Errorf("read workflow engine response: %w", err)
	}
	resp = &Response{StatusCode: httpResp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 && json.Valid(raw) {
		resp.Body = raw
	}
	return resp, nil
}

func (c *Client) bearerToken() (string, error) {
	if c.jwt != nil {
		token, err := c.jwt.GenerateToken("novel-orchestrator", "workflow", "workflow-engine", tokenTTL)
		if err != nil {
			return "", fmt.Errorf("mint workflow token: %w", err)
		}
		return token, nil
	}
	return c.token, nil
}
