package callback

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
)

var tracer = otel.Tracer("callback")

const defaultTimeout = 10 * time.Second

// ErrDeliveryFailed 回调目标返回非 2xx
var ErrDeliveryFailed = errors.New("callback delivery failed")

// Payload 回调载荷
type Payload struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender 回调发送器，单次投递不重试
type Sender struct {
	signer     *Signer
	httpClient *http.Client
}

// NewSender 创建回调发送器
func NewSender(cfg *config.CallbackConfig) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sender{
		signer:     NewSigner(cfg.Secret, cfg.MaxSkew),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Signer 返回签名器
func (s *Sender) Signer() *Signer { return s.signer }

// Send 签名并投递回调
func (s *Sender) Send(ctx context.Context, url string, p Payload) (err error) {
	ctx, span := tracer.Start(ctx, "callback.Send",
		trace.WithAttributes(attribute.Bool("callback.success", p.Success)))
	defer span.End()
	defer func() {
		status := "delivered"
		if err != nil {
			status = "failed"
			traceutil.RecordError(span, err)
			logger.Warn(ctx, "callback delivery failed", "request_id", p.RequestID, "error", err.Error())
		}
		metrics.CallbackDeliveries.WithLabelValues(status).Inc()
	}()

	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}
	signature, timestamp, err := s.signer.Sign(body)
	if err != nil {
		return fmt.Errorf("sign callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	traceutil.InjectHeaders(ctx, req.Header)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
