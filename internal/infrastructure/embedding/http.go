package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"novel-orchestrator/internal/config"
)

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewHTTPEmbedder 创建自托管 /embed 服务的 Embedder
func NewHTTPEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}
	model := cfg.Model
	if model == "" {
		model = "BAAI/bge-m3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	target := u.String()

	return &batched{
		name:      "http",
		model:     model,
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
		call: func(ctx context.Context, texts []string) ([][]float32, error) {
			reqBody, err := json.Marshal(&embedRequest{Texts: texts, Model: model})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal embed request: %w", err)
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
			if err != nil {
				return nil, fmt.Errorf("failed to create embed request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			if cfg.APIKey != "" {
				httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
			}

			httpResp, err := httpClient.Do(httpReq)
			if err != nil {
				return nil, fmt.Errorf("embedding request failed: %w", err)
			}
			defer httpResp.Body.Close()

			if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
				return nil, fmt.Errorf("embedding request failed: status=%d", httpResp.StatusCode)
			}
			var resp embedResponse
			if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
				return nil, fmt.Errorf("failed to decode embed response: %w", err)
			}
			return resp.Embeddings, nil
		},
	}, nil
}
