package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/utils"
)

func TestClient_DelegateGeneration_StaticToken(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"executionId":"exec-1"}`))
	}))
	defer srv.Close()

	c := NewClient(&config.WorkflowConfig{GenerationURL: srv.URL, Token: "static"})
	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-9")
	resp, err := c.DelegateGeneration(ctx, map[string]any{"novelId": "abc"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer static", gotAuth)
	assert.Equal(t, "req-9", gotRequestID)
	assert.Equal(t, "abc", gotBody["novelId"])
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"executionId":"exec-1"}`, string(resp.Body))
}

func TestClient_DelegateUpload_JWT(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(&config.WorkflowConfig{UploadURL: srv.URL, JWTSecret: "shared"})
	resp, err := c.DelegateUpload(context.Background(), map[string]any{"novelId": "abc"})
	require.NoError(t, err)
	assert.Nil(t, resp.Body)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	claims, err := utils.NewJWTManager("shared", "novel-orchestrator").ParseToken(strings.TrimPrefix(gotAuth, "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, "workflow", claims.Scope)
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(&config.WorkflowConfig{GenerationURL: srv.URL})
	_, err := c.DelegateGeneration(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, err, "engine down")
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(&config.WorkflowConfig{})
	assert.False(t, c.GenerationEnabled())
	assert.False(t, c.UploadEnabled())
	_, err := c.DelegateUpload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
