package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
)

func TestNewEmbedder_None(t *testing.T) {
	e, err := NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestHTTPEmbedder_Batches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: srv.URL, BatchSize: 2, Dimension: 3})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, e.Dimension())
}

func TestHTTPEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "status=502")
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[2,2]},
			{"object":"embedding","index":0,"embedding":[1,1]}
		]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestBatched_CountMismatch(t *testing.T) {
	b := &batched{name: "fake", call: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}}
	_, err := b.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, [][]float32{{0.5, 1}}, toFloat32([][]float64{{0.5, 1}}))
}
